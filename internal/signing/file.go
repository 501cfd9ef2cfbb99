package signing

import (
	"crypto/ed25519"
	"encoding/base64"
	"os"

	"github.com/pkg/errors"
	"github.com/tyler-smith/go-bip39"
	"gopkg.in/yaml.v3"

	"github.com/roach88/holoclient/internal/holo"
)

const credentialFileVersion = 1

// credentialFile is the on-disk form of Credentials. The ed25519 seed is
// stored as a BIP-39 mnemonic.
type credentialFile struct {
	Version   int            `yaml:"version"`
	CellID    string         `yaml:"cell_id"`
	Mnemonic  string         `yaml:"mnemonic"`
	CapSecret string         `yaml:"cap_secret"`
	Functions *functionsFile `yaml:"functions"`
}

type functionsFile struct {
	All    bool           `yaml:"all,omitempty"`
	Listed []functionFile `yaml:"listed,omitempty"`
}

type functionFile struct {
	Zome string `yaml:"zome"`
	Fn   string `yaml:"fn"`
}

// MarshalCredentials encodes creds as YAML.
func MarshalCredentials(creds *Credentials) ([]byte, error) {
	mnemonic, err := bip39.NewMnemonic(creds.KeyPair.Seed())
	if err != nil {
		return nil, errors.Wrap(err, "encode seed mnemonic")
	}
	fns := &functionsFile{All: creds.Functions.All}
	for _, ref := range creds.Functions.Listed {
		fns.Listed = append(fns.Listed, functionFile{Zome: ref.Zome, Fn: ref.Fn})
	}
	return yaml.Marshal(credentialFile{
		Version:   credentialFileVersion,
		CellID:    creds.CellID.String(),
		Mnemonic:  mnemonic,
		CapSecret: base64.StdEncoding.EncodeToString(creds.CapSecret),
		Functions: fns,
	})
}

// UnmarshalCredentials decodes YAML produced by MarshalCredentials.
func UnmarshalCredentials(data []byte) (*Credentials, error) {
	var f credentialFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, errors.Wrap(err, "parse credentials")
	}
	if f.Version != credentialFileVersion {
		return nil, errors.Errorf("unsupported credentials version %d", f.Version)
	}
	cellID, err := holo.ParseCellID(f.CellID)
	if err != nil {
		return nil, errors.Wrap(err, "parse cell_id")
	}
	if !bip39.IsMnemonicValid(f.Mnemonic) {
		return nil, errors.New("invalid seed mnemonic")
	}
	seed, err := bip39.EntropyFromMnemonic(f.Mnemonic)
	if err != nil {
		return nil, errors.Wrap(err, "decode seed mnemonic")
	}
	if len(seed) != ed25519.SeedSize {
		return nil, errors.Errorf("seed must be %d bytes, got %d", ed25519.SeedSize, len(seed))
	}
	secret, err := base64.StdEncoding.DecodeString(f.CapSecret)
	if err != nil {
		return nil, errors.Wrap(err, "decode cap_secret")
	}

	var functions holo.GrantedFunctions
	if f.Functions == nil || f.Functions.All {
		functions = holo.AllFunctions()
	} else {
		for _, fn := range f.Functions.Listed {
			functions.Listed = append(functions.Listed, holo.FunctionRef{Zome: fn.Zome, Fn: fn.Fn})
		}
	}
	return NewCredentials(ed25519.NewKeyFromSeed(seed), secret, cellID, functions)
}

// SaveCredentials writes creds to path, readable only by the owner.
func SaveCredentials(path string, creds *Credentials) error {
	data, err := MarshalCredentials(creds)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return errors.Wrapf(err, "write credentials %s", path)
	}
	return nil
}

// LoadCredentials reads credentials written by SaveCredentials.
func LoadCredentials(path string) (*Credentials, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "read credentials %s", path)
	}
	return UnmarshalCredentials(data)
}
