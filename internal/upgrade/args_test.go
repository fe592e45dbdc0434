package upgrade

import (
	"testing"

	. "github.com/onsi/gomega"
)

func TestParseArgs(t *testing.T) {
	g := NewWithT(t)

	args, err := ParseArgs([]string{"keep=3", "force", "upgradeIds=a, b,,c", "expr=x=y"})
	g.Expect(err).NotTo(HaveOccurred())

	g.Expect(args.Bool(ArgForce)).To(BeTrue())
	g.Expect(args.Bool("missing")).To(BeFalse())
	g.Expect(args.Strings("upgradeIds")).To(Equal([]string{"a", "b", "c"}))
	g.Expect(args["expr"]).To(Equal("x=y"))

	keep, err := args.Int("keep", 5)
	g.Expect(err).NotTo(HaveOccurred())
	g.Expect(keep).To(Equal(3))

	def, err := args.Int("other", 5)
	g.Expect(err).NotTo(HaveOccurred())
	g.Expect(def).To(Equal(5))
}

func TestParseArgsErrors(t *testing.T) {
	g := NewWithT(t)

	_, err := ParseArgs([]string{"=value"})
	g.Expect(err).To(HaveOccurred())

	args, err := ParseArgs([]string{"keep=many", "force=false"})
	g.Expect(err).NotTo(HaveOccurred())
	_, err = args.Int("keep", 5)
	g.Expect(err).To(HaveOccurred())
	g.Expect(args.Bool(ArgForce)).To(BeFalse())
}
