package dotdir_test

import (
	"os"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/recall/pkg/dotdir"
)

var _ = Describe("Manager.Target", func() {
	var (
		tmpDir string
		m      *dotdir.Manager
	)

	// chdir moves into dir until the test ends.
	chdir := func(dir string) {
		orig, err := os.Getwd()
		Expect(err).NotTo(HaveOccurred())
		Expect(os.Chdir(dir)).To(Succeed())
		DeferCleanup(func() { _ = os.Chdir(orig) })
	}

	BeforeEach(func() {
		var err error
		// Symlinks resolved so results compare equal to filepath.Abs output
		// on macOS, where /var links to /private/var.
		tmpDir, err = filepath.EvalSymlinks(GinkgoT().TempDir())
		Expect(err).NotTo(HaveOccurred())

		GinkgoT().Setenv(dotdir.HomeEnv, "")
		GinkgoT().Setenv("HOME", filepath.Join(tmpDir, "home"))
		m = dotdir.NewManager()
	})

	It("creates and returns the override directory", func() {
		dir := filepath.Join(tmpDir, "custom")

		result, err := m.Target(dir)
		Expect(err).NotTo(HaveOccurred())
		Expect(result).To(Equal(dir))

		info, err := os.Stat(dir)
		Expect(err).NotTo(HaveOccurred())
		Expect(info.IsDir()).To(BeTrue())
	})

	It("prefers the override over RECALL_HOME and a local directory", func() {
		Expect(os.Mkdir(filepath.Join(tmpDir, ".recall"), 0o755)).To(Succeed())
		chdir(tmpDir)
		GinkgoT().Setenv(dotdir.HomeEnv, filepath.Join(tmpDir, "env"))

		result, err := m.Target(filepath.Join(tmpDir, "override"))
		Expect(err).NotTo(HaveOccurred())
		Expect(result).To(Equal(filepath.Join(tmpDir, "override")))
	})

	It("prefers RECALL_HOME over a local directory", func() {
		Expect(os.Mkdir(filepath.Join(tmpDir, ".recall"), 0o755)).To(Succeed())
		chdir(tmpDir)
		GinkgoT().Setenv(dotdir.HomeEnv, filepath.Join(tmpDir, "env"))

		result, err := m.Target("")
		Expect(err).NotTo(HaveOccurred())
		Expect(result).To(Equal(filepath.Join(tmpDir, "env")))
	})

	It("uses an existing local .recall directory", func() {
		local := filepath.Join(tmpDir, ".recall")
		Expect(os.Mkdir(local, 0o755)).To(Succeed())
		chdir(tmpDir)

		result, err := m.Target("")
		Expect(err).NotTo(HaveOccurred())
		Expect(result).To(Equal(local))
	})

	It("falls back to ~/.recall and creates it", func() {
		empty := filepath.Join(tmpDir, "empty")
		Expect(os.Mkdir(empty, 0o755)).To(Succeed())
		chdir(empty)

		result, err := m.Target("")
		Expect(err).NotTo(HaveOccurred())
		Expect(result).To(Equal(filepath.Join(tmpDir, "home", ".recall")))

		info, err := os.Stat(result)
		Expect(err).NotTo(HaveOccurred())
		Expect(info.IsDir()).To(BeTrue())
	})
})
