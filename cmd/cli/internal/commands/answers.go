package commands

import (
	"fmt"
	"os"

	"github.com/wolfeidau/pcasign/internal/prompt"
	"github.com/wolfeidau/pcasign/internal/region"
	"gopkg.in/yaml.v3"
)

// answers is the YAML form of the provisioning questions, for unattended runs.
//
//	root_common_name: RootCA
//	end_entity_common_name: Signer1
//	key_alias: my-key-alias
//	region: us-east-1
type answers struct {
	RootCommonName      string `yaml:"root_common_name"`
	EndEntityCommonName string `yaml:"end_entity_common_name"`
	KeyAlias            string `yaml:"key_alias"`
	// Region is a region name or a menu number.
	Region string `yaml:"region"`
}

func loadAnswers(path string) (prompt.Input, error) {
	f, err := os.Open(path)
	if err != nil {
		return prompt.Input{}, fmt.Errorf("failed to open answers file: %w", err)
	}
	defer f.Close()

	var a answers
	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	if err := dec.Decode(&a); err != nil {
		return prompt.Input{}, fmt.Errorf("failed to parse answers file %s: %w", path, err)
	}

	in := prompt.Input{
		RootCommonName:      a.RootCommonName,
		EndEntityCommonName: a.EndEntityCommonName,
		KeyAlias:            a.KeyAlias,
	}
	if a.Region != "" {
		if in.Region, err = region.Parse(a.Region); err != nil {
			return prompt.Input{}, fmt.Errorf("answers file %s: %w", path, err)
		}
	}

	return in, nil
}
