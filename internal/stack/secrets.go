// Copyright 2021 Nick Tolhurst
// Licensed under the AGPLv3, see LICENCE file for details.

package stack

import (
	"math/rand"

	"github.com/juju/errors"
	"github.com/juju/utils/v4"
)

// Secrets holds the credentials a deployment embeds as secure values:
// the broker/VM administrator password and the RabbitMQ Erlang cookie.
// They are supplied by the caller so that Build stays deterministic;
// generate fresh ones with GenerateSecrets when none are configured.
type Secrets struct {
	AdminPassword string
	ErlangCookie  string
}

func (s Secrets) validate() error {
	if s.AdminPassword == "" {
		return errors.NotValidf("empty admin password")
	}
	if s.ErlangCookie == "" {
		return errors.NotValidf("empty Erlang cookie")
	}
	return nil
}

// GenerateSecrets returns a fresh secret set: a mixed-class random
// password and an upper-alpha cookie in the style RabbitMQ generates
// for itself.
func GenerateSecrets() Secrets {
	return Secrets{
		AdminPassword: randomPassword(),
		ErlangCookie:  utils.RandomString(20, utils.UpperAlpha),
	}
}

// randomPassword returns a random administrator password. We want at
// least one each of lower-alpha, upper-alpha, and digit; allocate a
// run of each and shuffle so the class boundaries do not show.
func randomPassword() string {
	validRunes := append(utils.LowerAlpha, utils.Digits...)
	validRunes = append(validRunes, utils.UpperAlpha...)

	lowerAlpha := utils.RandomString(8, utils.LowerAlpha)
	upperAlpha := utils.RandomString(8, utils.UpperAlpha)
	digits := utils.RandomString(4, utils.Digits)
	mixed := utils.RandomString(4, validRunes)
	password := []rune(lowerAlpha + upperAlpha + digits + mixed)
	for i := len(password) - 1; i >= 1; i-- {
		j := rand.Intn(i + 1)
		password[i], password[j] = password[j], password[i]
	}
	return string(password)
}
