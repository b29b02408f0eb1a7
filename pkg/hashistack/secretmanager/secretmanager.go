package secretmanager

import (
	vault "github.com/hashicorp/vault-client-go"
	"go.uber.org/fx"
)

// Module provides a vault client configured from VAULT_ADDR / VAULT_TOKEN.
// config.LoadConfig only reads from it when VAULT_ENABLE is true.
var Module = fx.Module("secretmanager", fx.Provide(ProvideVault))

func ProvideVault() (*vault.Client, error) {
	return vault.New(vault.WithEnvironment())
}
