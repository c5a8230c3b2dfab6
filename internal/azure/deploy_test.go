// Copyright 2021 Nick Tolhurst
// Licensed under the AGPLv3, see LICENCE file for details.

package azure

import (
	"github.com/juju/errors"
	jujutesting "github.com/juju/testing"
	jc "github.com/juju/testing/checkers"
	gc "gopkg.in/check.v1"

	"github.com/nicktolhurst/private-rmq/internal/topology"
)

type deploySuite struct {
	jujutesting.IsolationSuite
}

var _ = gc.Suite(&deploySuite{})

func (s *deploySuite) TestGroupLocation(c *gc.C) {
	g := topology.NewGraph()
	err := g.Add(topology.ResourceGroup{GroupName: "rg", Location: "westeurope"})
	c.Assert(err, jc.ErrorIsNil)
	location, err := groupLocation(g, "rg")
	c.Assert(err, jc.ErrorIsNil)
	c.Assert(location, gc.Equals, "westeurope")
}

func (s *deploySuite) TestGroupLocationMissing(c *gc.C) {
	g := topology.NewGraph()
	_, err := groupLocation(g, "rg")
	c.Assert(err, jc.Satisfies, errors.IsNotFound)
}

func (s *deploySuite) TestLookupKindMismatch(c *gc.C) {
	g := topology.NewGraph()
	err := g.Add(topology.ResourceGroup{GroupName: "thing", Location: "westeurope"})
	c.Assert(err, jc.ErrorIsNil)
	_, err = lookup[topology.VirtualNetwork](g, "thing")
	c.Assert(err, jc.Satisfies, errors.IsNotValid)
}
