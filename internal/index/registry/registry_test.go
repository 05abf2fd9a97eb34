package registry

import "testing"

func TestAliasName(t *testing.T) {
	if got := AliasName("acme", "prod"); got != "index_asset_acme_prod" {
		t.Errorf("live alias = %q", got)
	}
	if got := AliasName("acme", "prod", AliasTagNew); got != "index_asset_acme_prod__new" {
		t.Errorf("tagged alias = %q", got)
	}
	if got := AliasName("acme", "prod", ""); got != "index_asset_acme_prod" {
		t.Errorf("empty tag must name the live alias, got %q", got)
	}
}
