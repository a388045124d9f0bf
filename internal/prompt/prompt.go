package prompt

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/wolfeidau/pcasign/internal/region"
)

// ErrInputClosed is returned when the input stream ends before a question is answered.
var ErrInputClosed = errors.New("input closed before an answer was given")

const (
	RootCommonNameQuestion      = "Please provide the private CA root common name:"
	EndEntityCommonNameQuestion = "Please provide the end entity common name:"
	KeyAliasQuestion            = "Please provide the alias for the KMS signing key:"
	RegionQuestion              = "Please select the AWS Region to deploy the KMS signing key and Private CA:"
)

// Input is everything the operator supplies before provisioning starts.
type Input struct {
	RootCommonName      string
	EndEntityCommonName string
	KeyAlias            string
	Region              region.Region
}

// Prompter asks questions on out and reads answers from in, one line at a time.
type Prompter struct {
	in  *bufio.Reader
	out io.Writer
}

func New(in io.Reader, out io.Writer) *Prompter {
	return &Prompter{
		in:  bufio.NewReader(in),
		out: out,
	}
}

// Required asks question until a non-empty line is read. The answer is
// returned as typed, only the line terminator is removed.
func (p *Prompter) Required(question string) (string, error) {
	for {
		fmt.Fprintln(p.out, question)

		answer, err := p.readLine()
		if err != nil {
			return "", err
		}
		if answer != "" {
			return answer, nil
		}
	}
}

// Region prints the region menu and parses the answer. A non-numeric answer
// is an error and is not asked again.
func (p *Prompter) Region() (region.Region, error) {
	fmt.Fprintln(p.out, RegionQuestion)
	for _, opt := range region.Menu {
		fmt.Fprintf(p.out, "[%d] => %s\n", opt.Choice, opt.Label)
	}

	answer, err := p.readLine()
	if err != nil {
		return "", err
	}

	return region.ParseChoice(answer)
}

// Collect fills in every field of preset that is still empty, asking in the
// order root CA name, end entity name, key alias, region.
func (p *Prompter) Collect(preset Input) (Input, error) {
	in := preset

	var err error
	if in.RootCommonName == "" {
		if in.RootCommonName, err = p.Required(RootCommonNameQuestion); err != nil {
			return Input{}, fmt.Errorf("root common name: %w", err)
		}
	}

	if in.EndEntityCommonName == "" {
		if in.EndEntityCommonName, err = p.Required(EndEntityCommonNameQuestion); err != nil {
			return Input{}, fmt.Errorf("end entity common name: %w", err)
		}
	}

	if in.KeyAlias == "" {
		if in.KeyAlias, err = p.Required(KeyAliasQuestion); err != nil {
			return Input{}, fmt.Errorf("key alias: %w", err)
		}
	}

	if in.Region == "" {
		if in.Region, err = p.Region(); err != nil {
			return Input{}, fmt.Errorf("region: %w", err)
		}
	}

	return in, nil
}

func (p *Prompter) readLine() (string, error) {
	line, err := p.in.ReadString('\n')
	if err != nil {
		if !errors.Is(err, io.EOF) {
			return "", fmt.Errorf("failed to read input: %w", err)
		}
		// a final line without a newline still counts as an answer
		if line == "" {
			return "", ErrInputClosed
		}
	}

	return strings.TrimRight(line, "\r\n"), nil
}
