package auth

import (
	"fmt"
	"log"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/xenitab/go-oidc-middleware/oidctoken"
	"github.com/xenitab/go-oidc-middleware/options"

	"github.com/openpseudonym/idbroker/internal/config"
)

// Skipper defines a function to skip authentication for matching requests.
type Skipper func(*http.Request) bool

// ErrorResponder writes authentication failures to the response writer.
type ErrorResponder func(http.ResponseWriter, *http.Request, error)

type verifierOptions struct {
	skipper        Skipper
	errorResponder ErrorResponder
}

// VerifierOption customises the behaviour of the verifier middleware.
type VerifierOption func(*verifierOptions)

// WithSkipper overrides the default skipper used by the verifier.
func WithSkipper(skipper Skipper) VerifierOption {
	return func(o *verifierOptions) {
		if skipper != nil {
			o.skipper = skipper
		}
	}
}

// WithErrorResponder overrides the default error responder used by the verifier.
func WithErrorResponder(responder ErrorResponder) VerifierOption {
	return func(o *verifierOptions) {
		if responder != nil {
			o.errorResponder = responder
		}
	}
}

// NewVerifier constructs a chi-compatible middleware that authenticates
// requests and stores the verified subject on the context.
//
// With an issuer configured, tokens are validated through
// go-oidc-middleware (signature via the issuer's JWKS, issuer and required
// audience checks). Without one, and only when AUTH_INSECURE_DEV is set,
// tokens are decoded without signature verification so local setups and
// tests can run against the API without an IdP.
func NewVerifier(cfg *config.Config, opts ...VerifierOption) (func(http.Handler) http.Handler, error) {
	vOpts := verifierOptions{
		skipper:        defaultSkipper,
		errorResponder: defaultErrorResponder,
	}
	for _, opt := range opts {
		opt(&vOpts)
	}

	var parse func(r *http.Request, token string) (map[string]any, error)

	if cfg.OIDC.Enabled() {
		tokenHandler, err := oidctoken.New[map[string]any](nil,
			options.WithIssuer(cfg.OIDC.Issuer),
			options.WithRequiredAudience(cfg.OIDC.Audience),
		)
		if err != nil {
			return nil, fmt.Errorf("initialise oidc token handler: %w", err)
		}
		parse = func(r *http.Request, token string) (map[string]any, error) {
			return tokenHandler.ParseToken(r.Context(), token)
		}
	} else if cfg.OIDC.InsecureDev {
		log.Printf("WARNING: AUTH_INSECURE_DEV enabled, bearer tokens are NOT signature-checked")
		parse = func(_ *http.Request, token string) (map[string]any, error) {
			claims := jwt.MapClaims{}
			if _, _, err := new(jwt.Parser).ParseUnverified(token, claims); err != nil {
				return nil, fmt.Errorf("parse token: %w", err)
			}
			return claims, nil
		}
	} else {
		return nil, fmt.Errorf("no authentication mode configured")
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if vOpts.skipper != nil && vOpts.skipper(r) {
				next.ServeHTTP(w, r)
				return
			}

			token, err := bearerToken(r)
			if err != nil {
				vOpts.errorResponder(w, r, err)
				return
			}

			claims, err := parse(r, token)
			if err != nil {
				vOpts.errorResponder(w, r, fmt.Errorf("invalid token: %w", err))
				return
			}

			subject, _ := claims["sub"].(string)
			if subject == "" {
				vOpts.errorResponder(w, r, fmt.Errorf("token missing sub claim"))
				return
			}

			next.ServeHTTP(w, r.WithContext(SetSubjectContext(r.Context(), subject)))
		})
	}, nil
}

func bearerToken(r *http.Request) (string, error) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return "", fmt.Errorf("missing authorization header")
	}
	const prefix = "Bearer "
	if !strings.HasPrefix(header, prefix) {
		return "", fmt.Errorf("authorization header is not a bearer token")
	}
	token := strings.TrimSpace(strings.TrimPrefix(header, prefix))
	if token == "" {
		return "", fmt.Errorf("empty bearer token")
	}
	return token, nil
}

func defaultSkipper(r *http.Request) bool {
	if r == nil {
		return false
	}
	if r.Method == http.MethodOptions {
		return true
	}
	return strings.HasPrefix(r.URL.Path, "/health")
}

func defaultErrorResponder(w http.ResponseWriter, _ *http.Request, err error) {
	log.Printf("authentication failed: %v", err)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_, _ = w.Write([]byte(`{"type":"ERROR","msg":"unauthenticated","status":401}`))
}
