package framework_test

import (
	"testing"

	"github.com/m-mizutani/gt"
	"github.com/m-mizutani/notecraft/pkg/service/framework"
)

func TestNewCatalog(t *testing.T) {
	catalog, err := framework.NewCatalog()
	gt.NoError(t, err)
	gt.A(t, catalog.Frameworks()).Longer(3)
	gt.V(t, catalog.Get(framework.DefaultName)).NotNil()
}

func TestMatchKeywords(t *testing.T) {
	catalog, err := framework.NewCatalog()
	gt.NoError(t, err)

	matches := catalog.MatchKeywords([]string{"测评", "开箱"})
	gt.A(t, matches).Longer(0)
	gt.Equal(t, matches[0].Name, "产品测评")
}

func TestMatchKeywordsNoOverlap(t *testing.T) {
	catalog, err := framework.NewCatalog()
	gt.NoError(t, err)

	matches := catalog.MatchKeywords([]string{"量子物理"})
	gt.A(t, matches).Length(1)
	gt.Equal(t, matches[0].Name, framework.DefaultName)
}

func TestMatchKeywordsEmpty(t *testing.T) {
	catalog, err := framework.NewCatalog()
	gt.NoError(t, err)

	matches := catalog.MatchKeywords(nil)
	gt.A(t, matches).Length(1)
	gt.Equal(t, matches[0].Name, framework.DefaultName)
}

func TestMatchKeywordsOrdering(t *testing.T) {
	catalog, err := framework.NewCatalog()
	gt.NoError(t, err)

	matches := catalog.MatchKeywords([]string{"教程", "攻略", "步骤"})
	for i := 1; i < len(matches); i++ {
		gt.True(t, matches[i-1].Score >= matches[i].Score)
	}
}
