// Package pkcs7 decodes the subset of PKCS #7 / CMS SignedData used by JAR
// signature blocks. It keeps the raw encodings that signature verification
// depends on, which general purpose PKCS #7 libraries discard.
package pkcs7

import (
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/asn1"
	"errors"
	"fmt"
	"math/big"
)

var (
	OIDData                   = asn1.ObjectIdentifier{1, 2, 840, 113549, 1, 7, 1}
	OIDSignedData             = asn1.ObjectIdentifier{1, 2, 840, 113549, 1, 7, 2}
	OIDAttributeContentType   = asn1.ObjectIdentifier{1, 2, 840, 113549, 1, 9, 3}
	OIDAttributeMessageDigest = asn1.ObjectIdentifier{1, 2, 840, 113549, 1, 9, 4}
)

var ErrNotSignedData = errors.New("pkcs7: content is not SignedData")

type contentInfo struct {
	ContentType asn1.ObjectIdentifier
	Content     asn1.RawValue `asn1:"explicit,optional,tag:0"`
}

type signedData struct {
	Version          int
	DigestAlgorithms asn1.RawValue
	EncapContentInfo contentInfo
	Certificates     asn1.RawValue `asn1:"optional,tag:0"`
	CRLs             asn1.RawValue `asn1:"optional,tag:1"`
	SignerInfos      []signerInfo  `asn1:"set"`
}

type IssuerAndSerial struct {
	Issuer       asn1.RawValue
	SerialNumber *big.Int
}

type signerInfo struct {
	Version            int
	Sid                IssuerAndSerial
	DigestAlgorithm    pkix.AlgorithmIdentifier
	SignedAttrs        asn1.RawValue `asn1:"optional,tag:0"`
	SignatureAlgorithm pkix.AlgorithmIdentifier
	Signature          []byte
	UnsignedAttrs      asn1.RawValue `asn1:"optional,tag:1"`
}

type attribute struct {
	Type   asn1.ObjectIdentifier
	Values asn1.RawValue
}

// SignerInfo is a decoded SignerInfo with its signed attributes kept in
// their original encoding.
type SignerInfo struct {
	Issuer             pkix.RDNSequence
	RawIssuer          []byte
	SerialNumber       *big.Int
	DigestAlgorithm    asn1.ObjectIdentifier
	SignatureAlgorithm asn1.ObjectIdentifier
	Signature          []byte

	// RawSignedAttrs is the complete [0] IMPLICIT SET OF Attribute encoding
	// as found in the block, nil when the SignerInfo has no signed
	// attributes. It is BER when the block is.
	RawSignedAttrs []byte

	derSignedAttrs []byte
}

// SignedData is the decoded content of a signature block.
type SignedData struct {
	ContentType  asn1.ObjectIdentifier
	Certificates []*x509.Certificate
	Signers      []SignerInfo
}

// Parse decodes a DER or BER encoded ContentInfo wrapping SignedData.
func Parse(data []byte) (*SignedData, error) {
	if len(data) == 0 {
		return nil, errors.New("pkcs7: input data is empty")
	}

	res, err := parseDer(data)
	if err == nil {
		return res, nil
	} else if errors.Is(err, ErrNotSignedData) {
		return nil, err
	}

	der, berErr := berToDer(data)
	if berErr != nil {
		return nil, err
	}
	if res, err = parseDer(der); err != nil {
		return nil, err
	}
	if err := keepBerSignedAttrs(res, data); err != nil {
		return nil, err
	}
	return res, nil
}

// keepBerSignedAttrs replaces the signed attributes with their original BER
// encoding, which is what the signatures cover.
func keepBerSignedAttrs(sd *SignedData, ber []byte) error {
	attrs, err := berSignedAttrs(ber)
	if err != nil {
		return fmt.Errorf("pkcs7: failed to locate signed attributes: %w", err)
	}
	if len(attrs) != len(sd.Signers) {
		return fmt.Errorf("pkcs7: found %d SignerInfos in BER, %d in DER", len(attrs), len(sd.Signers))
	}
	for i := range sd.Signers {
		si := &sd.Signers[i]
		if (si.RawSignedAttrs == nil) != (attrs[i] == nil) {
			return fmt.Errorf("pkcs7: SignerInfo #%d signed attributes mismatch between BER and DER", i+1)
		}
		if attrs[i] != nil {
			si.RawSignedAttrs = attrs[i]
		}
	}
	return nil
}

func parseDer(data []byte) (*SignedData, error) {
	var info contentInfo
	rest, err := asn1.Unmarshal(data, &info)
	if err != nil {
		return nil, fmt.Errorf("pkcs7: failed to decode ContentInfo: %w", err)
	} else if len(rest) != 0 {
		return nil, errors.New("pkcs7: trailing data after ContentInfo")
	}

	if !info.ContentType.Equal(OIDSignedData) {
		return nil, fmt.Errorf("%w: %s", ErrNotSignedData, info.ContentType)
	}

	var sd signedData
	if _, err := asn1.Unmarshal(info.Content.Bytes, &sd); err != nil {
		return nil, fmt.Errorf("pkcs7: failed to decode SignedData: %w", err)
	}

	res := &SignedData{
		ContentType: sd.EncapContentInfo.ContentType,
	}

	if len(sd.Certificates.Bytes) != 0 {
		res.Certificates, err = parseCertificates(sd.Certificates.Bytes)
		if err != nil {
			return nil, fmt.Errorf("pkcs7: failed to decode certificates: %w", err)
		}
	}

	for i := range sd.SignerInfos {
		si := &sd.SignerInfos[i]

		info := SignerInfo{
			RawIssuer:          si.Sid.Issuer.FullBytes,
			SerialNumber:       si.Sid.SerialNumber,
			DigestAlgorithm:    si.DigestAlgorithm.Algorithm,
			SignatureAlgorithm: si.SignatureAlgorithm.Algorithm,
			Signature:          si.Signature,
		}
		if _, err := asn1.Unmarshal(si.Sid.Issuer.FullBytes, &info.Issuer); err != nil {
			return nil, fmt.Errorf("pkcs7: failed to decode SignerInfo #%d issuer: %w", i+1, err)
		}
		if len(si.SignedAttrs.FullBytes) != 0 {
			info.RawSignedAttrs = si.SignedAttrs.FullBytes
			info.derSignedAttrs = si.SignedAttrs.FullBytes
		}
		res.Signers = append(res.Signers, info)
	}
	return res, nil
}

// SignedAttributes returns the attribute values keyed by the attribute type
// OID. Each attribute must appear once and carry exactly one value.
func (si *SignerInfo) SignedAttributes() (map[string][]byte, error) {
	if si.RawSignedAttrs == nil {
		return nil, nil
	}

	encoded := si.derSignedAttrs
	if encoded == nil {
		encoded = si.RawSignedAttrs
	}

	var set asn1.RawValue
	if _, err := asn1.Unmarshal(encoded, &set); err != nil {
		return nil, fmt.Errorf("failed to decode signed attributes: %w", err)
	}

	res := make(map[string][]byte)
	rest := set.Bytes
	for len(rest) != 0 {
		var attr attribute
		var err error
		if rest, err = asn1.Unmarshal(rest, &attr); err != nil {
			return nil, fmt.Errorf("failed to decode signed attribute: %w", err)
		}
		if attr.Values.Class != asn1.ClassUniversal || attr.Values.Tag != asn1.TagSet {
			return nil, fmt.Errorf("signed attribute %s values are not a SET", attr.Type)
		}

		key := attr.Type.String()
		if _, prs := res[key]; prs {
			return nil, fmt.Errorf("duplicate signed attribute: %s", key)
		}

		var value asn1.RawValue
		valueRest, err := asn1.Unmarshal(attr.Values.Bytes, &value)
		if err != nil {
			return nil, fmt.Errorf("failed to decode signed attribute %s value: %w", key, err)
		} else if len(valueRest) != 0 {
			return nil, fmt.Errorf("signed attribute %s has more than one value", key)
		}
		res[key] = value.FullBytes
	}
	return res, nil
}

// SignedAttributesForVerification returns the bytes a signature over the
// signed attributes is computed on: the attribute encoding re-tagged as a
// universal SET.
func (si *SignerInfo) SignedAttributesForVerification() []byte {
	if len(si.RawSignedAttrs) == 0 {
		return nil
	}
	res := make([]byte, len(si.RawSignedAttrs))
	copy(res, si.RawSignedAttrs)
	res[0] = 0x31
	return res
}
