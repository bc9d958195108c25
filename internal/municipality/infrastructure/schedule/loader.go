package schedule

import (
	"errors"
	"fmt"
	"os"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	municipality "wastefee-cloud/internal/municipality/domain"
)

// File is the YAML layout of a fee schedule override file.
//
//	municipalities:
//	  nicosia:
//	    annual_fee: "190.00"
type File struct {
	Municipalities map[string]Entry `yaml:"municipalities"`
}

// Entry overrides a single municipality.
type Entry struct {
	AnnualFee string `yaml:"annual_fee"`
	Name      string `yaml:"name"`
	NameEN    string `yaml:"name_en"`
	Region    string `yaml:"region"`
}

// Load reads the schedule at path and builds a registry. An empty path
// yields the built-in schedule.
func Load(path string) (*municipality.Registry, error) {
	if path == "" {
		return municipality.DefaultRegistry(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("municipality schedule: %w", err)
	}
	return Parse(data)
}

// Parse builds a registry from raw YAML.
func Parse(data []byte) (*municipality.Registry, error) {
	var file File
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("municipality schedule: %w", err)
	}
	overrides := make([]municipality.FeeOverride, 0, len(file.Municipalities))
	for rawID, entry := range file.Municipalities {
		id, err := municipality.Parse(rawID)
		if err != nil {
			return nil, err
		}
		override := municipality.FeeOverride{
			ID:     id,
			Name:   entry.Name,
			NameEN: entry.NameEN,
			Region: entry.Region,
		}
		if entry.AnnualFee != "" {
			fee, err := decimal.NewFromString(entry.AnnualFee)
			if err != nil {
				return nil, fmt.Errorf("municipality schedule: fee for %s: %w", id, err)
			}
			if !fee.IsPositive() {
				return nil, errors.Join(municipality.ErrInvalidFee, fmt.Errorf("municipality schedule: fee for %s is %s", id, fee))
			}
			override.AnnualFee = fee
		}
		overrides = append(overrides, override)
	}
	return municipality.NewRegistry(overrides...)
}
