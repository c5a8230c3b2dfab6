// Copyright 2021 Nick Tolhurst
// Licensed under the AGPLv3, see LICENCE file for details.

// private-rmq declares and provisions a private RabbitMQ deployment on
// Azure: the broker in a container group on its own network, a client
// VM on a peered network, and a private DNS zone resolving the broker
// from both.
//
// Usage:
//
//	private-rmq [options] plan     print the resources in submission order
//	private-rmq [options] deploy   create the resources and print the outputs
//	private-rmq [options] destroy  delete the deployment's resource groups
package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/juju/errors"
	"github.com/juju/gnuflag"
	"github.com/juju/loggo/v2"

	"github.com/nicktolhurst/private-rmq/internal/azure"
	"github.com/nicktolhurst/private-rmq/internal/config"
	"github.com/nicktolhurst/private-rmq/internal/stack"
)

const (
	adminPasswordEnvVar = "RMQ_ADMIN_PASSWORD"
	erlangCookieEnvVar  = "RMQ_ERLANG_COOKIE"
)

func main() {
	if err := Main(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// Main runs the tool; split out of main for testing.
func Main(args []string) error {
	f := gnuflag.NewFlagSet("private-rmq", gnuflag.ContinueOnError)
	var (
		configPath    string
		loggingConfig string
	)
	f.StringVar(&configPath, "config", "private-rmq.yaml", "deployment configuration file")
	f.StringVar(&loggingConfig, "logging-config", "<root>=INFO", "loggo logger configuration")
	if err := f.Parse(true, args); err != nil {
		return errors.Trace(err)
	}
	if err := loggo.ConfigureLoggers(loggingConfig); err != nil {
		return errors.Trace(err)
	}
	if f.NArg() != 1 {
		return errors.New("usage: private-rmq [options] plan|deploy|destroy")
	}
	command := f.Arg(0)

	cfg, err := config.Read(configPath)
	if err != nil {
		return errors.Trace(err)
	}
	st, err := stack.Build(cfg, secretsFromEnv())
	if err != nil {
		return errors.Trace(err)
	}

	switch command {
	case "plan":
		return errors.Trace(printPlan(st))
	case "deploy":
		deployer, err := newDeployer(cfg)
		if err != nil {
			return errors.Trace(err)
		}
		results, err := deployer.Deploy(context.Background(), st)
		if err != nil {
			return errors.Trace(err)
		}
		fmt.Printf("broker-fqdn: %s\n", results.BrokerFQDN)
		fmt.Printf("vm-public-ip: %s\n", results.VMPublicIP)
		return nil
	case "destroy":
		deployer, err := newDeployer(cfg)
		if err != nil {
			return errors.Trace(err)
		}
		return errors.Trace(deployer.Destroy(context.Background(), st))
	default:
		return errors.NotValidf("command %q", command)
	}
}

// secretsFromEnv returns the deployment secrets, preferring explicit
// environment values over freshly generated ones. Secrets are never
// read from the configuration file and never printed.
func secretsFromEnv() stack.Secrets {
	secrets := stack.GenerateSecrets()
	if v := os.Getenv(adminPasswordEnvVar); v != "" {
		secrets.AdminPassword = v
	}
	if v := os.Getenv(erlangCookieEnvVar); v != "" {
		secrets.ErlangCookie = v
	}
	return secrets
}

func newDeployer(cfg *config.Config) (*azure.Deployer, error) {
	if cfg.SubscriptionID == "" {
		return nil, errors.New("subscription-id not configured and AZURE_SUBSCRIPTION_ID not set")
	}
	cred, err := azure.DefaultCredential()
	if err != nil {
		return nil, errors.Trace(err)
	}
	clients, err := azure.NewClients(cfg.SubscriptionID, cred)
	if err != nil {
		return nil, errors.Trace(err)
	}
	return azure.NewDeployer(clients), nil
}

func printPlan(st *stack.Stack) error {
	sorted, err := st.Graph.Sorted()
	if err != nil {
		return errors.Trace(err)
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 1, 2, ' ', 0)
	fmt.Fprintln(w, "ORDER\tKIND\tNAME\tDEPENDS ON")
	for i, r := range sorted {
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\n",
			i+1, r.Kind(), r.Name(), strings.Join(r.DependsOn(), ", "))
	}
	if err := w.Flush(); err != nil {
		return errors.Trace(err)
	}
	fmt.Printf("\noutputs: broker-fqdn=%s vm-public-ip=<from %s>\n",
		st.Outputs.BrokerFQDN, st.Outputs.VMPublicIPFrom)
	return nil
}
