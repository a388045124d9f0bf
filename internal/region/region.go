package region

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"
)

// Region is an AWS region that both the private CA and the KMS key are deployed to.
type Region string

const (
	USEast1      Region = "us-east-1"
	USEast2      Region = "us-east-2"
	USWest1      Region = "us-west-1"
	USWest2      Region = "us-west-2"
	EUWest1      Region = "eu-west-1"
	EUWest2      Region = "eu-west-2"
	EUWest3      Region = "eu-west-3"
	EUNorth1     Region = "eu-north-1"
	EUCentral1   Region = "eu-central-1"
	CACentral1   Region = "ca-central-1"

	// Default is used when the operator picks a number outside the menu.
	Default = USEast1
)

// ErrInvalidChoice is returned when a menu answer is not an integer.
var ErrInvalidChoice = errors.New("region choice must be a number")

// ErrUnknownRegion is returned when a region name is not in the menu.
var ErrUnknownRegion = errors.New("unknown region")

// Option is a single numbered entry in the region menu.
type Option struct {
	Choice int
	Label  string
	Region Region
}

// Menu is the fixed, ordered set of regions offered to the operator.
var Menu = []Option{
	{Choice: 1, Label: "us east 1", Region: USEast1},
	{Choice: 2, Label: "us east 2", Region: USEast2},
	{Choice: 3, Label: "us west 1", Region: USWest1},
	{Choice: 4, Label: "us west 2", Region: USWest2},
	{Choice: 5, Label: "eu west 1", Region: EUWest1},
	{Choice: 6, Label: "eu west 2", Region: EUWest2},
	{Choice: 7, Label: "eu west 3", Region: EUWest3},
	{Choice: 8, Label: "eu north 1", Region: EUNorth1},
	{Choice: 9, Label: "eu central 1", Region: EUCentral1},
	{Choice: 10, Label: "ca central 1", Region: CACentral1},
}

func (r Region) String() string {
	return string(r)
}

// FromChoice maps a menu number to its region. Numbers outside the menu
// fall back to Default and report false.
func FromChoice(n int) (Region, bool) {
	for _, opt := range Menu {
		if opt.Choice == n {
			return opt.Region, true
		}
	}
	return Default, false
}

// ParseChoice parses an operator's menu answer. Anything that is not an
// integer is rejected with ErrInvalidChoice; integers outside the menu
// resolve to Default.
func ParseChoice(s string) (Region, error) {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return "", fmt.Errorf("%w: %q", ErrInvalidChoice, s)
	}

	r, ok := FromChoice(n)
	if !ok {
		log.Warn().Int("choice", n).Str("region", string(r)).Msg("Region choice not in menu, using default")
	}
	return r, nil
}

// Parse accepts either a region name ("eu-west-2") or a menu number ("6").
func Parse(s string) (Region, error) {
	s = strings.TrimSpace(s)
	if _, err := strconv.Atoi(s); err == nil {
		return ParseChoice(s)
	}

	for _, opt := range Menu {
		if string(opt.Region) == strings.ToLower(s) {
			return opt.Region, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownRegion, s)
}
