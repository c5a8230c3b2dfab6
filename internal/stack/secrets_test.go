// Copyright 2021 Nick Tolhurst
// Licensed under the AGPLv3, see LICENCE file for details.

package stack_test

import (
	"strings"
	"unicode"

	jujutesting "github.com/juju/testing"
	jc "github.com/juju/testing/checkers"
	gc "gopkg.in/check.v1"

	"github.com/nicktolhurst/private-rmq/internal/stack"
)

type secretsSuite struct {
	jujutesting.IsolationSuite
}

var _ = gc.Suite(&secretsSuite{})

func (s *secretsSuite) TestGeneratePassword(c *gc.C) {
	secrets := stack.GenerateSecrets()
	c.Assert(secrets.AdminPassword, gc.HasLen, 24)
	var lower, upper, digit bool
	for _, r := range secrets.AdminPassword {
		switch {
		case unicode.IsLower(r):
			lower = true
		case unicode.IsUpper(r):
			upper = true
		case unicode.IsDigit(r):
			digit = true
		}
	}
	c.Check(lower, jc.IsTrue)
	c.Check(upper, jc.IsTrue)
	c.Check(digit, jc.IsTrue)
}

func (s *secretsSuite) TestGenerateCookie(c *gc.C) {
	secrets := stack.GenerateSecrets()
	c.Assert(secrets.ErlangCookie, gc.HasLen, 20)
	c.Assert(secrets.ErlangCookie, gc.Equals, strings.ToUpper(secrets.ErlangCookie))
}

func (s *secretsSuite) TestGenerateFresh(c *gc.C) {
	a := stack.GenerateSecrets()
	b := stack.GenerateSecrets()
	c.Assert(a.AdminPassword, gc.Not(gc.Equals), b.AdminPassword)
	c.Assert(a.ErlangCookie, gc.Not(gc.Equals), b.ErlangCookie)
}
