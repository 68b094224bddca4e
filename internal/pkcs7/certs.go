package pkcs7

import (
	"crypto/x509"
	"encoding/asn1"
	"errors"
	"math/big"
)

func parseCertificates(data []byte) ([]*x509.Certificate, error) {
	var res []*x509.Certificate
	for len(data) != 0 {
		var raw asn1.RawValue
		var err error
		if data, err = asn1.Unmarshal(data, &raw); err != nil {
			return nil, err
		}

		cert, err := parseCertificate(raw.FullBytes)
		if err != nil {
			return nil, err
		}
		res = append(res, cert)
	}
	return res, nil
}

// parseCertificate also accepts certificates with a negative serial number,
// which Android installs but crypto/x509 refuses unless the
// x509negativeserial GODEBUG setting is on.
func parseCertificate(der []byte) (*x509.Certificate, error) {
	cert, err := x509.ParseCertificate(der)
	if err == nil {
		return cert, nil
	}
	if cert, lenientErr := parseNegativeSerialCertificate(der); lenientErr == nil {
		return cert, nil
	}
	return nil, err
}

// parseNegativeSerialCertificate parses der with its serial number made
// positive and then restores the original serial and raw encodings.
func parseNegativeSerialCertificate(der []byte) (*x509.Certificate, error) {
	var certSeq asn1.RawValue
	if rest, err := asn1.Unmarshal(der, &certSeq); err != nil {
		return nil, err
	} else if len(rest) != 0 {
		return nil, errors.New("trailing data after certificate")
	}

	var tbs asn1.RawValue
	sigPart, err := asn1.Unmarshal(certSeq.Bytes, &tbs)
	if err != nil {
		return nil, err
	}

	var version []byte
	var field asn1.RawValue
	rest, err := asn1.Unmarshal(tbs.Bytes, &field)
	if err != nil {
		return nil, err
	}
	if field.Class == asn1.ClassContextSpecific && field.Tag == 0 {
		version = field.FullBytes
		if rest, err = asn1.Unmarshal(rest, &field); err != nil {
			return nil, err
		}
	}

	if field.Class != asn1.ClassUniversal || field.Tag != asn1.TagInteger || len(field.Bytes) == 0 || field.Bytes[0]&0x80 == 0 {
		return nil, errors.New("serial number is not negative")
	}
	var serial *big.Int
	if _, err := asn1.Unmarshal(field.FullBytes, &serial); err != nil {
		return nil, err
	}

	positive, err := asn1.Marshal(asn1.RawValue{
		Class: asn1.ClassUniversal,
		Tag:   asn1.TagInteger,
		Bytes: append([]byte{0}, field.Bytes...),
	})
	if err != nil {
		return nil, err
	}

	tbsBody := make([]byte, 0, len(tbs.Bytes)+1)
	tbsBody = append(tbsBody, version...)
	tbsBody = append(tbsBody, positive...)
	tbsBody = append(tbsBody, rest...)
	patchedTbs, err := asn1.Marshal(asn1.RawValue{Class: asn1.ClassUniversal, Tag: asn1.TagSequence, IsCompound: true, Bytes: tbsBody})
	if err != nil {
		return nil, err
	}
	patched, err := asn1.Marshal(asn1.RawValue{
		Class:      asn1.ClassUniversal,
		Tag:        asn1.TagSequence,
		IsCompound: true,
		Bytes:      append(patchedTbs, sigPart...),
	})
	if err != nil {
		return nil, err
	}

	cert, err := x509.ParseCertificate(patched)
	if err != nil {
		return nil, err
	}
	cert.Raw = der
	cert.RawTBSCertificate = tbs.FullBytes
	cert.SerialNumber = serial
	return cert, nil
}
