package credentials

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
)

// SSMPrefix marks an API key value as an AWS SSM parameter name.
const SSMPrefix = "ssm:"

// ErrMissingCredential is returned when no source yields a key for a provider.
var ErrMissingCredential = errors.New("missing credential")

// ssmAPI is the minimal AWS SSM interface the resolver needs.
// *ssm.Client satisfies it.
type ssmAPI interface {
	GetParameter(ctx context.Context, in *ssm.GetParameterInput, optFns ...func(*ssm.Options)) (*ssm.GetParameterOutput, error)
}

// Resolver resolves provider API keys. Sources are consulted in order:
//  1. the explicit value from config.toml
//  2. credentials.toml in the .recall/ directory
//  3. the provider environment variable (OPENAI_API_KEY, ANTHROPIC_API_KEY)
//
// Whichever value wins is dereferenced through AWS SSM when it has the
// "ssm:" prefix.
type Resolver struct {
	store  *Manager
	getenv func(string) string
	logger *slog.Logger

	ssmOnce sync.Once
	ssm     ssmAPI
	ssmErr  error
}

// ResolverOption configures a Resolver.
type ResolverOption func(*Resolver)

// WithSSM uses api for "ssm:" lookups instead of a client built from the
// default AWS config chain.
func WithSSM(api ssmAPI) ResolverOption {
	return func(r *Resolver) {
		r.ssmOnce.Do(func() { r.ssm = api })
	}
}

// WithGetenv replaces os.Getenv.
func WithGetenv(getenv func(string) string) ResolverOption {
	return func(r *Resolver) { r.getenv = getenv }
}

// WithLogger sets the resolver logger.
func WithLogger(logger *slog.Logger) ResolverOption {
	return func(r *Resolver) { r.logger = logger }
}

// NewResolver creates a Resolver. store may be nil to skip credentials.toml.
func NewResolver(store *Manager, opts ...ResolverOption) *Resolver {
	r := &Resolver{
		store:  store,
		getenv: os.Getenv,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve returns the API key for provider.
func (r *Resolver) Resolve(ctx context.Context, provider, explicit string) (string, error) {
	key, source, err := r.lookup(provider, explicit)
	if err != nil {
		return "", err
	}
	if key == "" {
		return "", fmt.Errorf("%w for provider %q (set backends.%s.api_key, run with %s, or store it in credentials.toml)",
			ErrMissingCredential, provider, provider, EnvVarForProvider(provider))
	}

	if name, ok := strings.CutPrefix(key, SSMPrefix); ok {
		key, err = r.fromSSM(ctx, name)
		if err != nil {
			return "", fmt.Errorf("resolving %s key from %s: %w", provider, source, err)
		}
		source += " via ssm"
	}

	r.logger.Debug("resolved credential", "provider", provider, "source", source)
	return key, nil
}

func (r *Resolver) lookup(provider, explicit string) (string, string, error) {
	if explicit = strings.TrimSpace(explicit); explicit != "" {
		return explicit, "config", nil
	}

	if r.store != nil {
		key, err := r.store.GetKey(provider)
		if err != nil {
			return "", "", err
		}
		if key != "" {
			return key, "credentials file", nil
		}
	}

	if env := EnvVarForProvider(provider); env != "" {
		if key := strings.TrimSpace(r.getenv(env)); key != "" {
			return key, env, nil
		}
	}

	return "", "", nil
}

func (r *Resolver) fromSSM(ctx context.Context, name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", errors.New("ssm parameter name is required")
	}

	r.ssmOnce.Do(func() {
		cfg, err := awsconfig.LoadDefaultConfig(ctx)
		if err != nil {
			r.ssmErr = fmt.Errorf("loading AWS config: %w", err)
			return
		}
		r.ssm = ssm.NewFromConfig(cfg)
	})
	if r.ssmErr != nil {
		return "", r.ssmErr
	}

	withDecryption := true
	out, err := r.ssm.GetParameter(ctx, &ssm.GetParameterInput{
		Name:           &name,
		WithDecryption: &withDecryption,
	})
	if err != nil {
		return "", fmt.Errorf("get parameter %q: %w", name, err)
	}
	if out == nil || out.Parameter == nil || out.Parameter.Value == nil {
		return "", fmt.Errorf("parameter %q has no value", name)
	}
	return *out.Parameter.Value, nil
}
