package jarverifier

import (
	"bytes"
	"crypto/dsa"
	"crypto/ecdsa"
	"crypto/rsa"
	"crypto/x509"
	"encoding/asn1"
	"errors"
	"fmt"
	"log/slog"
	"math/big"

	"github.com/avast/jarverifier/apilevel"
	"github.com/avast/jarverifier/internal/pkcs7"
)

var oidExtensionKeyUsage = asn1.ObjectIdentifier{2, 5, 29, 15}

// verifySigBlock checks the signer's .SF file against its PKCS#7 signature
// block and resolves the signing certificate chain. Problems are recorded on
// the signer.
func (v *verifier) verifySigBlock(s *signer) {
	blockName := s.sigBlockEntry.Name
	sigFileName := s.sigFileEntry.Name

	blockBytes, err := readEntry(v.apk, s.sigBlockEntry, v.sections.CentralDirectoryOffset)
	if err != nil {
		s.info.addError(IssueMalformedZipEntry, blockName, err)
		return
	}
	s.sigFileBytes, err = readEntry(v.apk, s.sigFileEntry, v.sections.CentralDirectoryOffset)
	if err != nil {
		s.info.addError(IssueMalformedZipEntry, sigFileName, err)
		return
	}

	signedData, err := pkcs7.Parse(blockBytes)
	if err != nil {
		s.info.addError(IssueParseException, blockName, err)
		return
	}

	if len(signedData.Signers) == 0 {
		s.info.addError(IssueNoSigners, blockName)
		return
	}

	// Prior to Android N only the first SignerInfo is tried. From N on, all
	// of them are and the first verified one is used.
	toTry := signedData.Signers
	if !apilevel.VerifiesAllSignerInfos(v.minSdkVersion) {
		toTry = toTry[:1]
	}

	var signingCert *x509.Certificate
	for i := range toTry {
		cert, err := v.verifySignerInfo(s, signedData, &toTry[i])
		if err != nil {
			s.info.addError(IssueVerifyException, blockName, sigFileName, err)
			return
		}
		if s.info.ContainsErrors() {
			return
		}
		if cert != nil {
			if signingCert == nil {
				signingCert = cert
			}
			v.log.Debug("signer info verified", slog.String("signer", s.name), slog.Int("index", i))
		}
	}

	if signingCert == nil {
		s.info.addError(IssueDidNotVerify, blockName, sigFileName)
		return
	}

	s.info.CertChain = buildCertChain(signedData.Certificates, signingCert)
}

// verifySignerInfo returns the signing certificate if info verifies
// against the signature file, nil if it simply does not verify and an
// error if the signature block must be rejected.
func (v *verifier) verifySignerInfo(s *signer, signedData *pkcs7.SignedData, info *pkcs7.SignerInfo) (*x509.Certificate, error) {
	digestOid := info.DigestAlgorithm.String()
	sigOid := info.SignatureAlgorithm.String()

	if unsupported := unsupportedSigAlgRanges(digestOid, sigOid, v.minSdkVersion, v.maxSdkVersion); len(unsupported) != 0 {
		s.info.addError(IssueUnsupportedSigAlg, s.sigBlockEntry.Name, digestOid, sigOid,
			unsupported.String(), friendlyOidName(digestOid), friendlyOidName(sigOid))
		return nil, nil
	}

	cert := findCertificate(signedData.Certificates, info)
	if cert == nil {
		return nil, errors.New("Signing certificate referenced in SignerInfo not found in SignedData")
	}

	if len(cert.UnhandledCriticalExtensions) != 0 {
		return nil, errors.New("Signing certificate has unsupported critical extensions")
	}
	if hasKeyUsageExtension(cert) && cert.KeyUsage&(x509.KeyUsageDigitalSignature|x509.KeyUsageContentCommitment) == 0 {
		return nil, errors.New("Signing certificate not authorized for use in digital signatures: " +
			"keyUsage extension missing digitalSignature and nonRepudiation")
	}

	alg, ok := signatureHash(digestOid, sigOid)
	if !ok {
		return nil, fmt.Errorf("Unsupported signature algorithm. Digest algorithm: %s, signature algorithm: %s", digestOid, sigOid)
	}

	signed := s.sigFileBytes
	if info.RawSignedAttrs != nil {
		// Before KitKat the signature file digest in signed attributes was not
		// checked at all, so such signatures do not protect the APK there.
		if !apilevel.AcceptsSignedAttributes(v.minSdkVersion) {
			return nil, errors.New("APKs with Signed Attributes broken on platforms with API Level < 19")
		}

		attrs, err := info.SignedAttributes()
		if err != nil {
			s.info.addError(IssueParseException, s.sigBlockEntry.Name, err)
			return nil, nil
		}

		if apilevel.VerifiesAllSignerInfos(v.maxSdkVersion) {
			raw, prs := attrs[pkcs7.OIDAttributeContentType.String()]
			if !prs {
				return nil, errors.New("No Content Type in signed attributes")
			}
			var contentType asn1.ObjectIdentifier
			if _, err := asn1.Unmarshal(raw, &contentType); err != nil {
				return nil, fmt.Errorf("Failed to parse signed attributes: %w", err)
			}
			// A different content type fails this SignerInfo only.
			if !contentType.Equal(signedData.ContentType) {
				return nil, nil
			}
		}

		raw, prs := attrs[pkcs7.OIDAttributeMessageDigest.String()]
		if !prs {
			return nil, errors.New("No content digest in signed attributes")
		}
		var expected []byte
		if _, err := asn1.Unmarshal(raw, &expected); err != nil {
			return nil, fmt.Errorf("Failed to parse signed attributes: %w", err)
		}

		digestHash, prs := digestOidHashes[digestOid]
		if !prs {
			return nil, fmt.Errorf("Unsupported digest algorithm: %s", digestOid)
		}
		h := digestHash.New()
		h.Write(s.sigFileBytes)
		if !bytes.Equal(expected, h.Sum(nil)) {
			return nil, nil
		}

		signed = info.SignedAttributesForVerification()
	}

	verified, err := checkSignature(cert, alg, signed, info.Signature)
	if err != nil {
		return nil, err
	} else if !verified {
		return nil, nil
	}
	return cert, nil
}

func findCertificate(certs []*x509.Certificate, info *pkcs7.SignerInfo) *x509.Certificate {
	if info.SerialNumber == nil {
		return nil
	}

	issuer := pkixCanonical(info.Issuer)
	for _, crt := range certs {
		if info.SerialNumber.Cmp(crt.SerialNumber) == 0 && issuer == certIssuerCanonical(crt) {
			return crt
		}
	}
	return nil
}

func hasKeyUsageExtension(cert *x509.Certificate) bool {
	for _, ext := range cert.Extensions {
		if ext.Id.Equal(oidExtensionKeyUsage) {
			return true
		}
	}
	return false
}

type dsaSignature struct {
	R, S *big.Int
}

// checkSignature reports whether signature is valid over signed. Errors
// are reserved for keys unusable with the algorithm and malformed
// signatures.
func checkSignature(cert *x509.Certificate, alg sigAlgorithm, signed, signature []byte) (bool, error) {
	if !alg.hash.Available() {
		return false, fmt.Errorf("hash %s is not available", alg.hash)
	}
	hasher := alg.hash.New()
	hasher.Write(signed)
	digest := hasher.Sum(nil)

	switch pub := cert.PublicKey.(type) {
	case *rsa.PublicKey:
		if alg.key != keyRSA {
			return false, fmt.Errorf("Unexpected public key type (%T)!", cert.PublicKey)
		}
		// Go rejects signatures shorter than the modulus, Android does not.
		if pubSize := pub.Size(); len(signature) < pubSize {
			signature = append(make([]byte, pubSize-len(signature)), signature...)
		}
		return rsa.VerifyPKCS1v15(pub, alg.hash, digest, signature) == nil, nil
	case *dsa.PublicKey:
		if alg.key != keyDSA {
			return false, fmt.Errorf("Unexpected public key type (%T)!", cert.PublicKey)
		}
		if reqLen := pub.Q.BitLen() / 8; reqLen < len(digest) {
			digest = digest[:reqLen]
		}

		dsaSig := new(dsaSignature)
		if rest, err := asn1.Unmarshal(signature, dsaSig); err != nil {
			return false, fmt.Errorf("malformed DSA signature: %w", err)
		} else if len(rest) != 0 {
			return false, errors.New("trailing data after DSA signature")
		}
		if dsaSig.R.Sign() <= 0 || dsaSig.S.Sign() <= 0 {
			return false, nil
		}
		return dsa.Verify(pub, digest, dsaSig.R, dsaSig.S), nil
	case *ecdsa.PublicKey:
		if alg.key != keyECDSA {
			return false, fmt.Errorf("Unexpected public key type (%T)!", cert.PublicKey)
		}
		return ecdsa.VerifyASN1(pub, digest, signature), nil
	default:
		return false, fmt.Errorf("Unsupported public key type (%T)", cert.PublicKey)
	}
}

// buildCertChain walks from leaf through issuers found among certs until a
// self-issued certificate is reached or no issuer is available. No path
// validation is performed.
func buildCertChain(certs []*x509.Certificate, leaf *x509.Certificate) []*x509.Certificate {
	unused := make([]*x509.Certificate, 0, len(certs))
	for _, c := range certs {
		if c != leaf {
			unused = append(unused, c)
		}
	}

	chain := []*x509.Certificate{leaf}
	root := leaf
	for certIssuerCanonical(root) != certSubjectCanonical(root) {
		target := certIssuerCanonical(root)
		found := -1
		for i, c := range unused {
			if certSubjectCanonical(c) == target {
				found = i
				break
			}
		}
		if found == -1 {
			break
		}

		root = unused[found]
		chain = append(chain, root)
		unused = append(unused[:found], unused[found+1:]...)
	}
	return chain
}
