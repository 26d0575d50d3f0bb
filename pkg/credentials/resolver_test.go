package credentials_test

import (
	"context"
	"errors"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/aws/aws-sdk-go-v2/service/ssm/types"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/recall/pkg/credentials"
	"github.com/papercomputeco/recall/pkg/logger"
)

type fakeSSM struct {
	values map[string]string
	err    error
	names  []string
}

func (f *fakeSSM) GetParameter(_ context.Context, in *ssm.GetParameterInput, _ ...func(*ssm.Options)) (*ssm.GetParameterOutput, error) {
	f.names = append(f.names, aws.ToString(in.Name))
	if f.err != nil {
		return nil, f.err
	}
	v, ok := f.values[aws.ToString(in.Name)]
	if !ok {
		return &ssm.GetParameterOutput{Parameter: &types.Parameter{Name: in.Name}}, nil
	}
	return &ssm.GetParameterOutput{Parameter: &types.Parameter{Name: in.Name, Value: aws.String(v)}}, nil
}

var _ = Describe("Resolver", func() {
	var (
		ctx   context.Context
		store *credentials.Manager
		env   map[string]string
		param *fakeSSM
	)

	BeforeEach(func() {
		ctx = context.Background()

		var err error
		store, err = credentials.NewManager(GinkgoT().TempDir())
		Expect(err).NotTo(HaveOccurred())

		env = map[string]string{}
		param = &fakeSSM{values: map[string]string{"/recall/openai": "sk-from-ssm"}}
	})

	newResolver := func() *credentials.Resolver {
		return credentials.NewResolver(store,
			credentials.WithSSM(param),
			credentials.WithGetenv(func(k string) string { return env[k] }),
			credentials.WithLogger(logger.Nop()),
		)
	}

	It("prefers the explicit config value", func() {
		Expect(store.SetKey("openai", "sk-file")).To(Succeed())
		env["OPENAI_API_KEY"] = "sk-env"

		key, err := newResolver().Resolve(ctx, "openai", "sk-config")
		Expect(err).NotTo(HaveOccurred())
		Expect(key).To(Equal("sk-config"))
	})

	It("falls back to credentials.toml before the environment", func() {
		Expect(store.SetKey("anthropic", "sk-ant-file")).To(Succeed())
		env["ANTHROPIC_API_KEY"] = "sk-ant-env"

		key, err := newResolver().Resolve(ctx, "anthropic", "")
		Expect(err).NotTo(HaveOccurred())
		Expect(key).To(Equal("sk-ant-file"))
	})

	It("falls back to the provider environment variable", func() {
		env["OPENAI_API_KEY"] = "sk-env"

		key, err := newResolver().Resolve(ctx, "openai", "  ")
		Expect(err).NotTo(HaveOccurred())
		Expect(key).To(Equal("sk-env"))
	})

	It("dereferences ssm: values through parameter store", func() {
		key, err := newResolver().Resolve(ctx, "openai", "ssm:/recall/openai")
		Expect(err).NotTo(HaveOccurred())
		Expect(key).To(Equal("sk-from-ssm"))
		Expect(param.names).To(Equal([]string{"/recall/openai"}))
	})

	It("dereferences ssm: values found in the environment", func() {
		env["OPENAI_API_KEY"] = "ssm:/recall/openai"

		key, err := newResolver().Resolve(ctx, "openai", "")
		Expect(err).NotTo(HaveOccurred())
		Expect(key).To(Equal("sk-from-ssm"))
	})

	It("fails when the parameter has no value", func() {
		_, err := newResolver().Resolve(ctx, "openai", "ssm:/recall/missing")
		Expect(err).To(MatchError(ContainSubstring("has no value")))
	})

	It("wraps parameter store errors", func() {
		param.err = errors.New("access denied")

		_, err := newResolver().Resolve(ctx, "openai", "ssm:/recall/openai")
		Expect(err).To(MatchError(ContainSubstring("access denied")))
	})

	It("returns ErrMissingCredential when no source has a key", func() {
		_, err := newResolver().Resolve(ctx, "anthropic", "")
		Expect(errors.Is(err, credentials.ErrMissingCredential)).To(BeTrue())
		Expect(err.Error()).To(ContainSubstring("ANTHROPIC_API_KEY"))
	})

	It("skips credentials.toml when no store is configured", func() {
		r := credentials.NewResolver(nil,
			credentials.WithGetenv(func(string) string { return "" }),
			credentials.WithLogger(logger.Nop()),
		)

		_, err := r.Resolve(ctx, "openai", "")
		Expect(errors.Is(err, credentials.ErrMissingCredential)).To(BeTrue())
	})
})
