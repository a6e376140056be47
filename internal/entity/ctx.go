package entity

import (
	"context"
)

type (
	CtxKeyIP        struct{}
	CtxKeyUserAgent struct{}
	CtxKeyPrincipal struct{}
	CtxKeyStepUp    struct{}
	CtxKeyToken     struct{}
)

func CtxWithIP(ctx context.Context, ip string) context.Context {
	return context.WithValue(ctx, CtxKeyIP{}, ip)
}

func IPFromCtx(ctx context.Context) string {
	ip, ok := ctx.Value(CtxKeyIP{}).(string)
	if !ok {
		return ""
	}

	return ip
}

func CtxWithUserAgent(ctx context.Context, ua string) context.Context {
	return context.WithValue(ctx, CtxKeyUserAgent{}, ua)
}

func UserAgentFromCtx(ctx context.Context) string {
	ua, ok := ctx.Value(CtxKeyUserAgent{}).(string)
	if !ok {
		return ""
	}

	return ua
}

func CtxWithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, CtxKeyPrincipal{}, p)
}

func PrincipalFromCtx(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(CtxKeyPrincipal{}).(Principal)
	return p, ok
}

func CtxWithStepUp(ctx context.Context, c StepUpClaims) context.Context {
	return context.WithValue(ctx, CtxKeyStepUp{}, c)
}

func StepUpFromCtx(ctx context.Context) (StepUpClaims, bool) {
	c, ok := ctx.Value(CtxKeyStepUp{}).(StepUpClaims)
	return c, ok
}

func CtxWithToken(ctx context.Context, token string) context.Context {
	return context.WithValue(ctx, CtxKeyToken{}, token)
}

func TokenFromCtx(ctx context.Context) string {
	t, ok := ctx.Value(CtxKeyToken{}).(string)
	if !ok {
		return ""
	}

	return t
}
