package mailer

import (
	"bytes"
	"errors"
	"fmt"
	"strings"

	"github.com/ProtonMail/go-crypto/openpgp"
	"github.com/ProtonMail/go-crypto/openpgp/armor"
)

var errNoPGPKey = errors.New("mailer: no PGP public key configured")

func readKeyRing(armoredKey string) (openpgp.EntityList, error) {
	if strings.TrimSpace(armoredKey) == "" {
		return nil, errNoPGPKey
	}
	entities, err := openpgp.ReadArmoredKeyRing(strings.NewReader(armoredKey))
	if err != nil {
		return nil, fmt.Errorf("mailer: parsing PGP public key: %w", err)
	}
	return entities, nil
}

// encrypt returns plaintext encrypted to every key in the ring, armored.
func encrypt(plaintext []byte, entities openpgp.EntityList) ([]byte, error) {
	var buf bytes.Buffer
	armorWriter, err := armor.Encode(&buf, "PGP MESSAGE", nil)
	if err != nil {
		return nil, fmt.Errorf("creating armor writer: %w", err)
	}

	encWriter, err := openpgp.Encrypt(armorWriter, entities, nil, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("creating encrypt writer: %w", err)
	}
	if _, err := encWriter.Write(plaintext); err != nil {
		return nil, fmt.Errorf("writing encrypted data: %w", err)
	}
	if err := encWriter.Close(); err != nil {
		return nil, err
	}
	if err := armorWriter.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
