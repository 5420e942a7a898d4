package auth

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/diwise/iot-gateway-monitor/internal/pkg/application/activitylogs"
	"github.com/diwise/iot-gateway-monitor/pkg/types"
	"github.com/diwise/service-chassis/pkg/infrastructure/o11y/logging"
	"github.com/diwise/service-chassis/pkg/infrastructure/o11y/tracing"
	"github.com/go-chi/jwtauth/v5"
	"github.com/goccy/go-json"
	"github.com/open-policy-agent/opa/rego"
	"go.opentelemetry.io/otel"
)

//go:embed authz.rego
var DefaultPolicies []byte

var tracer = otel.Tracer("iot-gateway-monitor/authz")

var ErrUnauthenticated = errors.New("unauthenticated")
var ErrForbidden = errors.New("forbidden")

type roleContextKey struct{ name string }

var roleCtxKey = &roleContextKey{"role"}

type Authenticator interface {
	// Authenticate verifies the bearer token and stores the caller in the request context.
	Authenticate(next http.Handler) http.Handler
	// RequirePermissions rejects callers whose role lacks any of the permissions.
	RequirePermissions(permissions ...types.Permission) func(http.Handler) http.Handler
	// Token issues a signed token, used by tools and tests.
	Token(subject string, role types.Role) (string, error)
}

type authenticator struct {
	jwt   *jwtauth.JWTAuth
	query rego.PreparedEvalQuery
}

func NewAuthenticator(ctx context.Context, secret []byte, policies io.Reader) (Authenticator, error) {
	if len(secret) == 0 {
		return nil, errors.New("a token secret is required")
	}

	module, err := io.ReadAll(policies)
	if err != nil {
		return nil, fmt.Errorf("unable to read authz policies: %s", err.Error())
	}

	query, err := rego.New(
		rego.Query("x = data.iotgatewaymonitor.authz.allow"),
		rego.Module("authz.rego", string(module)),
	).PrepareForEval(ctx)
	if err != nil {
		return nil, err
	}

	return &authenticator{
		jwt:   jwtauth.New("HS256", secret, nil),
		query: query,
	}, nil
}

func (a *authenticator) Authenticate(next http.Handler) http.Handler {
	return jwtauth.Verifier(a.jwt)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		logger := logging.GetFromContext(r.Context())

		token, claims, err := jwtauth.FromContext(r.Context())
		if err != nil || token == nil {
			logger.Info().Msg("request without valid token")
			writeError(w, http.StatusUnauthorized, ErrUnauthenticated)
			return
		}

		subject, _ := claims["sub"].(string)
		if subject == "" {
			logger.Info().Msg("token without subject")
			writeError(w, http.StatusUnauthorized, ErrUnauthenticated)
			return
		}

		// an unknown role is authenticated but has no rights
		claimedRole, _ := claims["role"].(string)
		role, _ := types.ParseRole(claimedRole)

		ctx := activitylogs.WithActor(r.Context(), subject)
		ctx = WithRole(ctx, role)

		next.ServeHTTP(w, r.WithContext(ctx))
	}))
}

func (a *authenticator) RequirePermissions(permissions ...types.Permission) func(http.Handler) http.Handler {
	required := make([]string, 0, len(permissions))
	for _, p := range permissions {
		required = append(required, string(p))
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var err error

			logger := logging.GetFromContext(r.Context())

			ctx, span := tracer.Start(r.Context(), "check-permissions")
			defer func() { tracing.RecordAnyErrorAndEndSpan(err, span) }()

			role := RoleFromContext(ctx)

			granted := []string{}
			for _, p := range types.RoleRights(role) {
				granted = append(granted, string(p))
			}

			input := map[string]any{
				"role":        string(role),
				"permissions": granted,
				"required":    required,
			}

			results, err := a.query.Eval(ctx, rego.EvalInput(input))
			if err != nil {
				logger.Error().Err(err).Msg("opa eval failed")
				writeError(w, http.StatusInternalServerError, err)
				return
			}

			if len(results) == 0 {
				err = errors.New("opa query could not be satisfied")
				logger.Error().Err(err).Msg("auth failed")
				writeError(w, http.StatusInternalServerError, err)
				return
			}

			allowed, ok := results[0].Bindings["x"].(bool)
			if !ok || !allowed {
				err = ErrForbidden
				logger.Warn().Str("role", string(role)).Strs("required", required).Msg("authorization failed")
				writeError(w, http.StatusForbidden, err)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func (a *authenticator) Token(subject string, role types.Role) (string, error) {
	_, token, err := a.jwt.Encode(map[string]any{
		"sub":  subject,
		"role": string(role),
	})
	return token, err
}

func WithRole(ctx context.Context, role types.Role) context.Context {
	return context.WithValue(ctx, roleCtxKey, role)
}

func RoleFromContext(ctx context.Context) types.Role {
	role, ok := ctx.Value(roleCtxKey).(types.Role)
	if !ok {
		return ""
	}
	return role
}

func writeError(w http.ResponseWriter, status int, err error) {
	b, _ := json.Marshal(map[string]any{"code": status, "message": err.Error()})

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(b)
}
