// Package auth maps API tokens to actors and their permissions.
package auth

import (
	"context"
	"crypto/subtle"
	"net/http"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"github.com/martinsuchenak/gestion-impacts/internal/config"
	"github.com/martinsuchenak/gestion-impacts/internal/log"
	"github.com/martinsuchenak/gestion-impacts/internal/model"
	"github.com/martinsuchenak/gestion-impacts/internal/storage"
)

// Realm is announced to browsers on the web views.
const Realm = "gestion-impacts"

type credential struct {
	name       string
	token      []byte
	hash       []byte
	permission model.Permission
}

// Authenticator resolves a presented secret to an actor.
type Authenticator struct {
	credentials []credential
}

// New builds an authenticator from the configured tokens. The single
// --api-token, when set, grants full access.
func New(cfg *config.Config) *Authenticator {
	a := &Authenticator{}
	if cfg.APIToken != "" {
		a.credentials = append(a.credentials, credential{
			name:       "api-token",
			token:      []byte(cfg.APIToken),
			permission: model.FullPermission(),
		})
	}
	for _, t := range cfg.Tokens {
		c := credential{name: t.Name, permission: t.Permission()}
		if t.TokenHash != "" {
			c.hash = []byte(t.TokenHash)
		} else {
			c.token = []byte(t.Token)
		}
		a.credentials = append(a.credentials, c)
	}
	return a
}

// Enabled reports whether any credential is configured. Without one every
// request runs as the anonymous actor.
func (a *Authenticator) Enabled() bool {
	return len(a.credentials) > 0
}

// Authenticate returns the actor owning secret.
func (a *Authenticator) Authenticate(secret string) (*model.Actor, bool) {
	if secret == "" {
		return nil, false
	}
	for _, c := range a.credentials {
		var ok bool
		if c.hash != nil {
			ok = bcrypt.CompareHashAndPassword(c.hash, []byte(secret)) == nil
		} else {
			ok = subtle.ConstantTimeCompare(c.token, []byte(secret)) == 1
		}
		if ok {
			return &model.Actor{Name: c.name, Permission: c.permission}, true
		}
	}
	return nil, false
}

// Middleware authenticates /api/ requests with a bearer token and web view
// requests with basic auth, the password being the token. The actor is
// stored in the request context.
func (a *Authenticator) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		api := strings.HasPrefix(r.URL.Path, "/api/")
		web := strings.HasPrefix(r.URL.Path, "/plugins/")
		if !api && !web {
			next.ServeHTTP(w, r)
			return
		}

		if !a.Enabled() {
			next.ServeHTTP(w, r.WithContext(WithActor(r.Context(), model.Anonymous())))
			return
		}

		var secret string
		if api {
			secret = bearerToken(r)
		} else if _, password, ok := r.BasicAuth(); ok {
			secret = password
		}

		actor, ok := a.Authenticate(secret)
		if !ok {
			log.Warn("Authentication failed", "path", r.URL.Path, "remote", r.RemoteAddr)
			if web {
				w.Header().Set("WWW-Authenticate", `Basic realm="`+Realm+`"`)
			}
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}

		next.ServeHTTP(w, r.WithContext(WithActor(r.Context(), actor)))
	})
}

func bearerToken(r *http.Request) string {
	parts := strings.Split(r.Header.Get("Authorization"), " ")
	if len(parts) != 2 || parts[0] != "Bearer" {
		return ""
	}
	return parts[1]
}

// HashToken returns the bcrypt hash to store as token_hash.
func HashToken(token string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(token), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

type actorKey struct{}

func WithActor(ctx context.Context, actor *model.Actor) context.Context {
	return context.WithValue(ctx, actorKey{}, actor)
}

// ActorFrom returns the actor of the request, anonymous when none was set.
func ActorFrom(ctx context.Context) *model.Actor {
	if actor, ok := ctx.Value(actorKey{}).(*model.Actor); ok && actor != nil {
		return actor
	}
	return model.Anonymous()
}

type requestIDKey struct{}

func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, id)
}

// RequestIDFrom returns the request id set by the request id middleware.
func RequestIDFrom(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

// WriteOptions attributes a storage write to the actor and request of ctx
// and restricts it to the objects the actor may touch.
func WriteOptions(ctx context.Context) storage.WriteOptions {
	actor := ActorFrom(ctx)
	return storage.WriteOptions{
		Actor:     actor.Name,
		RequestID: RequestIDFrom(ctx),
		Permits:   actor.Permission.Permits,
		Can:       actor.Permission.Can,
	}
}
