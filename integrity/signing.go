package integrity

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"fmt"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
)

// SigningKeyPair holds the ECDSA P-256 key that signs anchors
type SigningKeyPair struct {
	PrivateKey *ecdsa.PrivateKey
	PublicKey  *ecdsa.PublicKey
	KeyID      string
}

// GenerateSigningKeyPair creates a new P-256 key pair
func GenerateSigningKeyPair(keyID string) (*SigningKeyPair, error) {
	privateKey, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, errors.Wrap(err, "failed to generate ECDSA key pair")
	}

	return &SigningKeyPair{
		PrivateKey: privateKey,
		PublicKey:  &privateKey.PublicKey,
		KeyID:      keyID,
	}, nil
}

// SaveSigningKeyPair writes <keyID>.key (PKCS#8, 0600) and <keyID>.pub (PKIX, 0644)
func SaveSigningKeyPair(keyPair *SigningKeyPair, keyDir string) error {
	if err := os.MkdirAll(keyDir, 0700); err != nil {
		return errors.Wrap(err, "failed to create key directory")
	}

	privateKeyBytes, err := x509.MarshalPKCS8PrivateKey(keyPair.PrivateKey)
	if err != nil {
		return errors.Wrap(err, "failed to marshal private key")
	}
	if err := writePEM(privateKeyPath(keyDir, keyPair.KeyID), "PRIVATE KEY", privateKeyBytes, 0600); err != nil {
		return err
	}

	publicKeyBytes, err := x509.MarshalPKIXPublicKey(keyPair.PublicKey)
	if err != nil {
		return errors.Wrap(err, "failed to marshal public key")
	}
	return writePEM(publicKeyPath(keyDir, keyPair.KeyID), "PUBLIC KEY", publicKeyBytes, 0644)
}

// LoadSigningKeyPair loads a key pair written by SaveSigningKeyPair
func LoadSigningKeyPair(keyID, keyDir string) (*SigningKeyPair, error) {
	block, err := readPEM(privateKeyPath(keyDir, keyID), "PRIVATE KEY")
	if err != nil {
		return nil, err
	}

	privateKey, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, errors.Wrap(err, "failed to parse private key")
	}
	ecdsaPrivateKey, ok := privateKey.(*ecdsa.PrivateKey)
	if !ok {
		return nil, errors.New("private key is not an ECDSA key")
	}

	return &SigningKeyPair{
		PrivateKey: ecdsaPrivateKey,
		PublicKey:  &ecdsaPrivateKey.PublicKey,
		KeyID:      keyID,
	}, nil
}

// LoadPublicKey loads only the public half, which is all an auditor needs
func LoadPublicKey(keyID, keyDir string) (*ecdsa.PublicKey, error) {
	block, err := readPEM(publicKeyPath(keyDir, keyID), "PUBLIC KEY")
	if err != nil {
		return nil, err
	}

	publicKey, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		return nil, errors.Wrap(err, "failed to parse public key")
	}
	ecdsaPublicKey, ok := publicKey.(*ecdsa.PublicKey)
	if !ok {
		return nil, errors.New("public key is not an ECDSA key")
	}
	return ecdsaPublicKey, nil
}

// Sign signs a digest and returns the base64 ASN.1 signature
func (k *SigningKeyPair) Sign(digest []byte) (string, error) {
	signature, err := ecdsa.SignASN1(rand.Reader, k.PrivateKey, digest)
	if err != nil {
		return "", errors.Wrap(err, "failed to sign digest")
	}
	return base64.StdEncoding.EncodeToString(signature), nil
}

// VerifySignature checks a base64 ASN.1 signature over digest
func VerifySignature(publicKey *ecdsa.PublicKey, digest []byte, signature string) (bool, error) {
	raw, err := base64.StdEncoding.DecodeString(signature)
	if err != nil {
		return false, errors.Wrap(err, "failed to decode signature")
	}
	return ecdsa.VerifyASN1(publicKey, digest, raw), nil
}

func privateKeyPath(keyDir, keyID string) string {
	return filepath.Join(keyDir, fmt.Sprintf("%s.key", keyID))
}

func publicKeyPath(keyDir, keyID string) string {
	return filepath.Join(keyDir, fmt.Sprintf("%s.pub", keyID))
}

func writePEM(path, blockType string, der []byte, perm os.FileMode) error {
	file, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, perm)
	if err != nil {
		return errors.Wrapf(err, "failed to create %s", path)
	}
	defer file.Close()

	if err := pem.Encode(file, &pem.Block{Type: blockType, Bytes: der}); err != nil {
		return errors.Wrapf(err, "failed to encode %s", path)
	}
	return nil
}

func readPEM(path, blockType string) (*pem.Block, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read %s", path)
	}
	block, _ := pem.Decode(data)
	if block == nil || block.Type != blockType {
		return nil, errors.Errorf("failed to decode %s PEM block in %s", blockType, path)
	}
	return block, nil
}
