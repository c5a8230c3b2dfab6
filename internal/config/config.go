// Copyright 2021 Nick Tolhurst
// Licensed under the AGPLv3, see LICENCE file for details.

// Package config reads and validates the deployment configuration.
// Two attributes are required, the region and the private DNS zone
// name; everything else has a sensible default.
package config

import (
	"os"
	"regexp"
	"strings"

	"github.com/juju/errors"
	"github.com/juju/schema"
	"gopkg.in/yaml.v3"
)

const (
	configAttrLocation       = "location"
	configAttrDNSZone        = "dns-zone"
	configAttrNamePrefix     = "name-prefix"
	configAttrBrokerImage    = "broker-image"
	configAttrVMSize         = "vm-size"
	configAttrAdminUsername  = "admin-username"
	configAttrSubscriptionID = "subscription-id"

	// subscriptionIDEnvVar is consulted when subscription-id is not
	// configured. Only deploy and destroy need a subscription; plan
	// works without one.
	subscriptionIDEnvVar = "AZURE_SUBSCRIPTION_ID"

	// storageAccountNameMax constrains the name prefix: the storage
	// account name is derived from it and must fit in 24 characters.
	storageAccountNameMax = 24
	storageAccountSuffix  = "brokerstore"
)

var configFields = schema.Fields{
	configAttrLocation:       schema.String(),
	configAttrDNSZone:        schema.String(),
	configAttrNamePrefix:     schema.String(),
	configAttrBrokerImage:    schema.String(),
	configAttrVMSize:         schema.String(),
	configAttrAdminUsername:  schema.String(),
	configAttrSubscriptionID: schema.String(),
}

var configDefaults = schema.Defaults{
	configAttrNamePrefix:     "rmq",
	configAttrBrokerImage:    "rabbitmq:3.8-management",
	configAttrVMSize:         "Standard_B2s",
	configAttrAdminUsername:  "rabbitadmin",
	configAttrSubscriptionID: schema.Omit,
}

var validPrefix = regexp.MustCompile(`^[a-z][a-z0-9-]*$`)

// Config is the validated deployment configuration.
type Config struct {
	Location       string
	DNSZone        string
	NamePrefix     string
	BrokerImage    string
	VMSize         string
	AdminUsername  string
	SubscriptionID string
}

// Read loads the configuration from a YAML file.
func Read(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Annotate(err, "reading config file")
	}
	var attrs map[string]interface{}
	if err := yaml.Unmarshal(data, &attrs); err != nil {
		return nil, errors.Annotate(err, "parsing config file")
	}
	cfg, err := New(attrs)
	if err != nil {
		return nil, errors.Annotatef(err, "config file %q", path)
	}
	return cfg, nil
}

// New validates the given attributes and returns the configuration.
// Unknown attributes are rejected rather than ignored, so a typo in a
// config file fails loudly instead of silently falling back to a
// default.
func New(attrs map[string]interface{}) (*Config, error) {
	checker := schema.StrictFieldMap(configFields, configDefaults)
	coerced, err := checker.Coerce(attrs, nil)
	if err != nil {
		return nil, errors.NewNotValid(err, "invalid configuration")
	}
	m := coerced.(map[string]interface{})
	cfg := &Config{
		Location:      m[configAttrLocation].(string),
		DNSZone:       m[configAttrDNSZone].(string),
		NamePrefix:    m[configAttrNamePrefix].(string),
		BrokerImage:   m[configAttrBrokerImage].(string),
		VMSize:        m[configAttrVMSize].(string),
		AdminUsername: m[configAttrAdminUsername].(string),
	}
	if v, ok := m[configAttrSubscriptionID]; ok {
		cfg.SubscriptionID = v.(string)
	} else {
		cfg.SubscriptionID = os.Getenv(subscriptionIDEnvVar)
	}
	if err := cfg.validate(); err != nil {
		return nil, errors.Trace(err)
	}
	return cfg, nil
}

func (cfg *Config) validate() error {
	if cfg.Location == "" {
		return errors.NotValidf("empty %q", configAttrLocation)
	}
	if cfg.DNSZone == "" {
		return errors.NotValidf("empty %q", configAttrDNSZone)
	}
	if strings.HasPrefix(cfg.DNSZone, ".") || strings.HasSuffix(cfg.DNSZone, ".") {
		return errors.NotValidf("dns-zone %q", cfg.DNSZone)
	}
	if !validPrefix.MatchString(cfg.NamePrefix) {
		return errors.NotValidf("name-prefix %q", cfg.NamePrefix)
	}
	stripped := strings.ReplaceAll(cfg.NamePrefix, "-", "")
	if len(stripped)+len(storageAccountSuffix) > storageAccountNameMax {
		return errors.NotValidf("name-prefix %q longer than %d characters",
			cfg.NamePrefix, storageAccountNameMax-len(storageAccountSuffix))
	}
	if cfg.AdminUsername == "" {
		return errors.NotValidf("empty %q", configAttrAdminUsername)
	}
	return nil
}
