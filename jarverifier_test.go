package jarverifier

import (
	"bytes"
	"crypto"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/asn1"
	"math/big"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	mozpkcs7 "go.mozilla.org/pkcs7"

	"github.com/avast/jarverifier/apilevel"
	"github.com/avast/jarverifier/signingblock"
)

func sha256Jar(t *testing.T) *signedJar {
	return &signedJar{
		entries: defaultEntries(),
		digest:  jarSHA256,
		signer:  newRSASigner(t, "Test Signer"),
		block:   blockOptions{digestOid: mozpkcs7.OIDDigestAlgorithmSHA256, signedAttrs: true},
	}
}

func TestVerifySingleSigner(t *testing.T) {
	j := sha256Jar(t)
	res := verifyModern(t, j.build(t))

	require.True(t, res.Verified, "%v", res.Err())
	require.NoError(t, res.Err())
	require.Len(t, res.Signers, 1)
	require.Empty(t, res.IgnoredSigners)
	require.Empty(t, res.Warnings)

	s := res.Signers[0]
	assert.Equal(t, "X", s.Name)
	assert.Equal(t, "META-INF/X.SF", s.SignatureFileName)
	assert.Equal(t, "META-INF/X.RSA", s.SignatureBlockFileName)
	require.Len(t, s.CertChain, 1)
	assert.True(t, s.CertChain[0].Equal(j.signer.cert))

	info, cert := res.BestCert()
	require.NotNil(t, info)
	assert.True(t, cert.Equal(j.signer.cert))
	assert.Contains(t, info.Subject, "CN=Test Signer")
}

func TestVerifyFullRangeWithoutSignedAttributes(t *testing.T) {
	j := &signedJar{
		entries: defaultEntries(),
		digest:  jarSHA1,
		signer:  newRSASigner(t, "Legacy Signer"),
		block:   blockOptions{digestOid: mozpkcs7.OIDDigestAlgorithmSHA1},
	}
	res := verifyBytes(t, j.build(t), nil, apilevel.V_AnyMin, apilevel.V_AnyMax)

	require.True(t, res.Verified, "%v", res.Err())
	require.Len(t, res.Signers, 1)
	assert.Empty(t, res.Signers[0].Errors)
}

func TestVerifySignedAttributesBeforeKitKat(t *testing.T) {
	j := sha256Jar(t)
	res := verifyBytes(t, j.build(t), nil, apilevel.V4_3_JellyBean, apilevel.V_AnyMax)

	require.False(t, res.Verified)
	require.Len(t, res.Signers, 1)
	require.Equal(t, []IssueKind{IssueVerifyException}, issueKinds(res.Signers[0].Errors))
	assert.Contains(t, res.Signers[0].Errors[0].Error(), "API Level < 19")
}

func TestVerifyECDSASigner(t *testing.T) {
	j := &signedJar{
		entries:   defaultEntries(),
		digest:    jarSHA256,
		signer:    newECSigner(t, "EC Signer"),
		blockName: "META-INF/X.EC",
		block:     blockOptions{digestOid: mozpkcs7.OIDDigestAlgorithmSHA256, signedAttrs: true},
	}
	data := j.build(t)

	res := verifyBytes(t, data, nil, apilevel.V5_0_Lollipop, apilevel.V_AnyMax)
	require.True(t, res.Verified, "%v", res.Err())
	require.Len(t, res.Signers, 1)
	assert.Equal(t, "META-INF/X.EC", res.Signers[0].SignatureBlockFileName)

	// SHA256withECDSA is only accepted from Lollipop on.
	res = verifyBytes(t, data, nil, apilevel.V4_4_KitKat, apilevel.V_AnyMax)
	require.False(t, res.Verified)
	require.Len(t, res.Signers, 1)
	unsupported := findIssues(res.Signers[0].Errors, IssueUnsupportedSigAlg)
	require.Len(t, unsupported, 1)
	assert.Equal(t, "19-20", unsupported[0].Params[3])
}

func TestVerifyUnsupportedSignatureAlgorithm(t *testing.T) {
	j := sha256Jar(t)
	j.block = blockOptions{
		digestOid:     mozpkcs7.OIDDigestAlgorithmSHA256,
		encryptionOid: asn1.ObjectIdentifier{1, 2, 3, 4},
	}
	res := verifyBytes(t, j.build(t), nil, apilevel.V_AnyMin, apilevel.V_AnyMax)

	require.False(t, res.Verified)
	require.Len(t, res.Signers, 1)
	errs := res.Signers[0].Errors
	require.Equal(t, []IssueKind{IssueUnsupportedSigAlg}, issueKinds(errs))
	assert.Equal(t, "META-INF/X.RSA", errs[0].Params[0])
	assert.Equal(t, "2.16.840.1.101.3.4.2.1", errs[0].Params[1])
	assert.Equal(t, "1.2.3.4", errs[0].Params[2])
	assert.Equal(t, "0+", errs[0].Params[3])
}

func TestVerifyCertificateChain(t *testing.T) {
	key := testRSAKey(t)
	ca := &testKey{key: key}
	ca.cert = newTestCert(t, "Test CA", 10, &key.PublicKey, nil, key)
	leaf := &testKey{key: key}
	leaf.cert = newTestCert(t, "Test Leaf", 11, &key.PublicKey, ca, nil)

	j := sha256Jar(t)
	j.signer = leaf
	j.block.parents = []*x509.Certificate{ca.cert}
	res := verifyModern(t, j.build(t))

	require.True(t, res.Verified, "%v", res.Err())
	require.Len(t, res.Signers, 1)
	chain := res.Signers[0].CertChain
	require.Len(t, chain, 2)
	assert.True(t, chain[0].Equal(leaf.cert))
	assert.True(t, chain[1].Equal(ca.cert))
}

func TestVerifyEntryDigestMismatch(t *testing.T) {
	entries := defaultEntries()
	manifest, sections := buildManifest(entries, jarSHA256)
	sf := buildSigFile(jarSHA256, "", manifest, sections, "a.txt", "res/b.bin")
	signer := newRSASigner(t, "Test Signer")
	block := signBlock(t, sf, signer, blockOptions{digestOid: mozpkcs7.OIDDigestAlgorithmSHA256, signedAttrs: true})

	// Both entries are modified after signing and both must be reported.
	for i := range entries {
		entries[i].data = append([]byte{}, entries[i].data...)
		entries[i].data[0] ^= 0xff
	}

	data := writeZip(t, append([]zipFile{
		{name: manifestName, data: manifest},
		{name: "META-INF/X.SF", data: sf},
		{name: "META-INF/X.RSA", data: block},
	}, entries...)...)
	res := verifyModern(t, data)

	require.False(t, res.Verified)
	mismatches := findIssues(res.Errors, IssueZipEntryDigestDidNotVerify)
	require.Len(t, mismatches, 2)
	assert.Equal(t, "a.txt", mismatches[0].Params[0])
	assert.Equal(t, "SHA-256", mismatches[0].Params[1])
	assert.Equal(t, manifestName, mismatches[0].Params[2])
	assert.Equal(t, "res/b.bin", mismatches[1].Params[0])
}

func TestVerifySignersMismatch(t *testing.T) {
	entries := defaultEntries()
	manifest, sections := buildManifest(entries, jarSHA256)
	opts := blockOptions{digestOid: mozpkcs7.OIDDigestAlgorithmSHA256, signedAttrs: true}

	signer := newRSASigner(t, "Test Signer")
	sfX := buildSigFile(jarSHA256, "", manifest, sections, "a.txt")
	sfY := buildSigFile(jarSHA256, "", manifest, sections, "res/b.bin")

	data := writeZip(t, append([]zipFile{
		{name: manifestName, data: manifest},
		{name: "META-INF/X.SF", data: sfX},
		{name: "META-INF/X.RSA", data: signBlock(t, sfX, signer, opts)},
		{name: "META-INF/Y.SF", data: sfY},
		{name: "META-INF/Y.RSA", data: signBlock(t, sfY, signer, opts)},
	}, entries...)...)
	res := verifyModern(t, data)

	require.False(t, res.Verified)
	require.Equal(t, []IssueKind{IssueZipEntrySignersMismatch}, issueKinds(res.Errors))
	assert.Equal(t, []interface{}{"a.txt", "X", "res/b.bin", "Y"}, res.Errors[0].Params)
}

func TestVerifyTwoSigners(t *testing.T) {
	entries := defaultEntries()
	manifest, sections := buildManifest(entries, jarSHA256)
	opts := blockOptions{digestOid: mozpkcs7.OIDDigestAlgorithmSHA256, signedAttrs: true}
	sf := buildSigFile(jarSHA256, "", manifest, sections, "a.txt", "res/b.bin")

	data := writeZip(t, append([]zipFile{
		{name: manifestName, data: manifest},
		{name: "META-INF/X.SF", data: sf},
		{name: "META-INF/X.RSA", data: signBlock(t, sf, newRSASigner(t, "First"), opts)},
		{name: "META-INF/Y.SF", data: sf},
		{name: "META-INF/Y.EC", data: signBlock(t, sf, newECSigner(t, "Second"), opts)},
	}, entries...)...)
	res := verifyModern(t, data)

	require.True(t, res.Verified, "%v", res.Err())
	require.Len(t, res.Signers, 2)
	assert.Equal(t, "X", res.Signers[0].Name)
	assert.Equal(t, "Y", res.Signers[1].Name)
	assert.Len(t, res.CertChains(), 2)
}

func TestVerifyWholeManifestDigestSkipsSections(t *testing.T) {
	entries := defaultEntries()
	manifest, sections := buildManifest(entries, jarSHA256)

	// Section digests in the signature file refer to the original manifest
	// text, the whole manifest digest to the modified one.
	modified := bytes.Replace(manifest, []byte("Name: a.txt\r\n"), []byte("Name: a.txt\r\nX-Extra: 1\r\n"), 1)
	require.NotEqual(t, manifest, modified)

	signer := newRSASigner(t, "Test Signer")
	opts := blockOptions{digestOid: mozpkcs7.OIDDigestAlgorithmSHA256, signedAttrs: true}

	build := func(whole []byte) []byte {
		sf := buildSigFile(jarSHA256, "", whole, sections, "a.txt", "res/b.bin")
		return writeZip(t, append([]zipFile{
			{name: manifestName, data: modified},
			{name: "META-INF/X.SF", data: sf},
			{name: "META-INF/X.RSA", data: signBlock(t, sf, signer, opts)},
		}, entries...)...)
	}

	res := verifyModern(t, build(modified))
	require.True(t, res.Verified, "%v", res.Err())

	res = verifyModern(t, build(nil))
	require.False(t, res.Verified)
	require.Len(t, res.Signers, 1)
	assert.Equal(t, []IssueKind{IssueNoManifestDigestInSigFile}, issueKinds(res.Signers[0].Warnings))
	mismatches := findIssues(res.Signers[0].Errors, IssueManifestSectionDigestDidNotVerify)
	require.Len(t, mismatches, 1)
	assert.Equal(t, "a.txt", mismatches[0].Params[0])
}

func TestVerifyMissingManifest(t *testing.T) {
	res := verifyModern(t, writeZip(t, zipFile{name: "a.txt", data: []byte("a")}))

	require.False(t, res.Verified)
	require.Equal(t, []IssueKind{IssueNoManifest}, issueKinds(res.Errors))
	assert.Empty(t, res.Signers)
}

func TestVerifyDuplicateEntry(t *testing.T) {
	j := sha256Jar(t)
	j.extraFiles = []zipFile{{name: "a.txt", data: []byte("other")}}
	res := verifyModern(t, j.build(t))

	require.False(t, res.Verified)
	require.Equal(t, []IssueKind{IssueDuplicateZipEntry}, issueKinds(res.Errors))
	assert.Equal(t, "a.txt", res.Errors[0].Params[0])
	assert.Empty(t, res.Signers)
}

func TestVerifyManifestReferencesMissingEntry(t *testing.T) {
	entries := defaultEntries()
	manifest, _ := buildManifest(entries, jarSHA256)
	res := verifyModern(t, writeZip(t, zipFile{name: manifestName, data: manifest}, entries[0]))

	require.False(t, res.Verified)
	require.Equal(t, []IssueKind{IssueMissingZipEntryReferencedInManifest}, issueKinds(res.Errors))
	assert.Equal(t, "res/b.bin", res.Errors[0].Params[0])
}

func TestVerifyManifestSectionForDirectory(t *testing.T) {
	j := sha256Jar(t)
	j.entries = append(j.entries, zipFile{name: "res/"})
	res := verifyModern(t, j.build(t))

	require.False(t, res.Verified)
	require.Equal(t, []IssueKind{IssueMissingZipEntryReferencedInManifest}, issueKinds(res.Errors))
	assert.Equal(t, "res/", res.Errors[0].Params[0])
}

func TestVerifyUnsignedEntry(t *testing.T) {
	j := sha256Jar(t)
	j.extraFiles = []zipFile{{name: "c.txt", data: []byte("unsigned")}}
	res := verifyModern(t, j.build(t))

	require.False(t, res.Verified)
	require.Equal(t, []IssueKind{IssueNoZipEntryDigestInManifest}, issueKinds(res.Errors))
	assert.Equal(t, "c.txt", res.Errors[0].Params[0])
}

func TestVerifyNoSignatures(t *testing.T) {
	entries := defaultEntries()
	manifest, _ := buildManifest(entries, jarSHA256)
	res := verifyModern(t, writeZip(t, append([]zipFile{{name: manifestName, data: manifest}}, entries...)...))

	require.False(t, res.Verified)
	require.Equal(t, []IssueKind{IssueNoSignatures}, issueKinds(res.Errors))
}

func TestVerifyUnprotectedEntry(t *testing.T) {
	j := sha256Jar(t)
	j.extraFiles = []zipFile{{name: "META-INF/extra.txt", data: []byte("extra")}}
	res := verifyModern(t, j.build(t))

	require.True(t, res.Verified, "%v", res.Err())
	require.Equal(t, []IssueKind{IssueUnprotectedZipEntry}, issueKinds(res.Warnings))
	assert.Equal(t, "META-INF/extra.txt", res.Warnings[0].Params[0])
}

func TestVerifyBlockWithoutSigFile(t *testing.T) {
	j := sha256Jar(t)
	j.extraFiles = []zipFile{{name: "META-INF/Y.DSA", data: []byte("garbage")}}
	res := verifyModern(t, j.build(t))

	require.True(t, res.Verified, "%v", res.Err())
	require.Len(t, res.Signers, 1)
	require.Len(t, res.IgnoredSigners, 1)
	assert.Equal(t, "Y", res.IgnoredSigners[0].Name)

	missing := findIssues(res.Warnings, IssueMissingFile)
	require.Len(t, missing, 1)
	assert.Equal(t, []interface{}{"META-INF/Y.DSA", "META-INF/Y.SF"}, missing[0].Params)
	assert.Len(t, findIssues(res.Warnings, IssueUnprotectedZipEntry), 1)
}

func TestVerifyMalformedSignatureBlock(t *testing.T) {
	entries := defaultEntries()
	manifest, sections := buildManifest(entries, jarSHA256)
	sf := buildSigFile(jarSHA256, "", manifest, sections, "a.txt", "res/b.bin")

	data := writeZip(t, append([]zipFile{
		{name: manifestName, data: manifest},
		{name: "META-INF/X.SF", data: sf},
		{name: "META-INF/X.RSA", data: []byte("not a pkcs7 block")},
	}, entries...)...)
	res := verifyModern(t, data)

	require.False(t, res.Verified)
	require.Len(t, res.Signers, 1)
	assert.Equal(t, []IssueKind{IssueParseException}, issueKinds(res.Signers[0].Errors))
}

func TestVerifySigFileModifiedAfterSigning(t *testing.T) {
	for _, signedAttrs := range []bool{false, true} {
		entries := defaultEntries()
		manifest, sections := buildManifest(entries, jarSHA256)
		sf := buildSigFile(jarSHA256, "", manifest, sections, "a.txt", "res/b.bin")
		block := signBlock(t, sf, newRSASigner(t, "Test Signer"),
			blockOptions{digestOid: mozpkcs7.OIDDigestAlgorithmSHA256, signedAttrs: signedAttrs})

		tampered := bytes.Replace(sf, []byte("Created-By: 1.0 (Android)"), []byte("Created-By: 1.1 (Android)"), 1)
		data := writeZip(t, append([]zipFile{
			{name: manifestName, data: manifest},
			{name: "META-INF/X.SF", data: tampered},
			{name: "META-INF/X.RSA", data: block},
		}, entries...)...)
		res := verifyModern(t, data)

		require.False(t, res.Verified)
		require.Len(t, res.Signers, 1)
		assert.Equal(t, []IssueKind{IssueDidNotVerify}, issueKinds(res.Signers[0].Errors), "signed attributes: %v", signedAttrs)
	}
}

func TestVerifyMissingSignatureVersion(t *testing.T) {
	entries := defaultEntries()
	manifest, sections := buildManifest(entries, jarSHA256)
	sf := buildSigFile(jarSHA256, "", manifest, sections, "a.txt", "res/b.bin")
	sf = bytes.Replace(sf, []byte("Signature-Version: 1.0\r\n"), nil, 1)
	block := signBlock(t, sf, newRSASigner(t, "Test Signer"),
		blockOptions{digestOid: mozpkcs7.OIDDigestAlgorithmSHA256, signedAttrs: true})

	data := writeZip(t, append([]zipFile{
		{name: manifestName, data: manifest},
		{name: "META-INF/X.SF", data: sf},
		{name: "META-INF/X.RSA", data: block},
	}, entries...)...)
	res := verifyModern(t, data)

	require.False(t, res.Verified)
	require.Empty(t, res.Signers)
	require.Len(t, res.IgnoredSigners, 1)
	assert.Equal(t, []IssueKind{IssueMissingVersionAttrInSigFile}, issueKinds(res.IgnoredSigners[0].Errors))
	assert.Equal(t, []IssueKind{IssueNoSignatures}, issueKinds(res.Errors))
}

func TestVerifyStrippingProtection(t *testing.T) {
	j := sha256Jar(t)
	j.sfExtra = "X-Android-APK-Signed: 2\r\n"
	data := j.build(t)

	res := verifyBytes(t, data, nil, apilevel.V7_0_Nougat, apilevel.V_AnyMax)
	require.False(t, res.Verified)
	require.Len(t, res.Signers, 1)
	errs := res.Signers[0].Errors
	require.Equal(t, []IssueKind{IssueMissingApkSigReferenced}, issueKinds(errs))
	assert.Equal(t, []interface{}{"META-INF/X.SF", 2, "APK Signature Scheme v2"}, errs[0].Params)

	res = verifyBytes(t, data, map[int]bool{2: true}, apilevel.V7_0_Nougat, apilevel.V_AnyMax)
	require.True(t, res.Verified, "%v", res.Err())

	// Platforms before Nougat do not look at the attribute.
	res = verifyBytes(t, data, nil, apilevel.V4_4_KitKat, apilevel.V6_0_Marshmallow)
	require.True(t, res.Verified, "%v", res.Err())
}

func TestVerifyStrippingProtectionUnknownScheme(t *testing.T) {
	j := sha256Jar(t)
	j.sfExtra = "X-Android-APK-Signed: 2, 42\r\n"
	res := verifyBytes(t, j.build(t), map[int]bool{2: true}, apilevel.V7_0_Nougat, apilevel.V_AnyMax)

	require.True(t, res.Verified, "%v", res.Err())
	require.Len(t, res.Signers, 1)
	warnings := res.Signers[0].Warnings
	require.Equal(t, []IssueKind{IssueUnknownApkSigSchemeID}, issueKinds(warnings))
	assert.Equal(t, 42, warnings[0].Params[1])
}

func TestVerifyNoStrippingProtection(t *testing.T) {
	j := sha256Jar(t)
	res := verifyBytes(t, j.build(t), map[int]bool{2: true}, apilevel.V7_0_Nougat, apilevel.V_AnyMax)

	require.True(t, res.Verified, "%v", res.Err())
	require.Len(t, res.Signers, 1)
	assert.Equal(t, []IssueKind{IssueNoApkSigStripProtection}, issueKinds(res.Signers[0].Warnings))
}

func TestVerifyInvalidRange(t *testing.T) {
	j := sha256Jar(t)
	data := j.build(t)

	ds := signingblock.NewBytesDataSource(data)
	sections, err := signingblock.FindZipSections(ds)
	require.NoError(t, err)

	_, err = Verify(ds, sections, nil, nil, apilevel.V7_0_Nougat, apilevel.V4_4_KitKat)
	require.Error(t, err)

	_, err = Verify(ds, nil, nil, nil, apilevel.V_AnyMin, apilevel.V_AnyMax)
	require.Error(t, err)
}

func TestVerifyFile(t *testing.T) {
	j := sha256Jar(t)
	path := filepath.Join(t.TempDir(), "signed.jar")
	require.NoError(t, os.WriteFile(path, j.build(t), 0o644))

	res, err := VerifyFile(path, apilevel.V7_0_Nougat, apilevel.V_AnyMax)
	require.NoError(t, err)
	require.True(t, res.Verified, "%v", res.Err())
	require.Len(t, res.Signers, 1)

	_, err = VerifyFile(filepath.Join(t.TempDir(), "missing.jar"), apilevel.V_AnyMin, apilevel.V_AnyMax)
	require.Error(t, err)
}

func TestVerifySingleEntryScenario(t *testing.T) {
	j := sha256Jar(t)
	j.entries = []zipFile{{name: "a.txt", data: []byte("a")}}
	res := verifyModern(t, j.build(t))

	require.True(t, res.Verified, "%v", res.Err())
	require.Len(t, res.Signers, 1)
	assert.Equal(t, "X", res.Signers[0].Name)
}

func TestVerifyChainIsBestEffort(t *testing.T) {
	key := testRSAKey(t)
	ca := &testKey{key: key}
	ca.cert = newTestCert(t, "Absent CA", 20, &key.PublicKey, nil, key)
	leaf := &testKey{key: key}
	leaf.cert = newTestCert(t, "Orphan Leaf", 21, &key.PublicKey, ca, nil)

	// The issuer is not part of the block, which is fine: no path
	// validation takes place.
	j := sha256Jar(t)
	j.signer = leaf
	res := verifyModern(t, j.build(t))

	require.True(t, res.Verified, "%v", res.Err())
	require.Len(t, res.Signers, 1)
	require.Len(t, res.Signers[0].CertChain, 1)
	assert.True(t, res.Signers[0].CertChain[0].Equal(leaf.cert))
}

func TestVerifyNegativeSerialNumber(t *testing.T) {
	positive := []byte{0x02, 0x04, 0x7f, 0x12, 0x34, 0x56}
	negative := []byte{0x02, 0x04, 0x8f, 0x12, 0x34, 0x56}

	j := sha256Jar(t)
	j.signer = newRSASignerWith(t, "Negative Serial", 0x7f123456)
	j.patchBlock = func(block []byte) []byte {
		// certificate and SignerInfo
		require.Equal(t, 2, bytes.Count(block, positive))
		return bytes.ReplaceAll(block, positive, negative)
	}
	res := verifyModern(t, j.build(t))

	require.True(t, res.Verified, "%v", res.Err())
	require.Len(t, res.Signers, 1)
	require.Len(t, res.Signers[0].CertChain, 1)
	assert.Equal(t, 0, res.Signers[0].CertChain[0].SerialNumber.Cmp(big.NewInt(-0x70edcbaa)))
}

func TestVerifySignedAttributesContentTypeMismatch(t *testing.T) {
	j := sha256Jar(t)
	j.block.contentType = mozpkcs7.OIDEnvelopedData
	data := j.build(t)

	res := verifyModern(t, data)
	require.False(t, res.Verified)
	require.Len(t, res.Signers, 1)
	assert.Equal(t, []IssueKind{IssueDidNotVerify}, issueKinds(res.Signers[0].Errors))

	// Content types are compared from Android N on only.
	res = verifyBytes(t, data, nil, apilevel.V4_4_KitKat, apilevel.V6_0_Marshmallow)
	require.True(t, res.Verified, "%v", res.Err())
}

func TestVerifySignedAttributesMessageDigestMismatch(t *testing.T) {
	j := sha256Jar(t)
	j.block.signedContent = []byte("Signature-Version: 1.0\r\n\r\n")
	res := verifyModern(t, j.build(t))

	require.False(t, res.Verified)
	require.Len(t, res.Signers, 1)
	assert.Equal(t, []IssueKind{IssueDidNotVerify}, issueKinds(res.Signers[0].Errors))
}

func TestVerifyDuplicateSignedAttribute(t *testing.T) {
	attr := mozpkcs7.Attribute{Type: asn1.ObjectIdentifier{1, 3, 6, 1, 4, 1, 99999, 2}, Value: "dup"}

	j := sha256Jar(t)
	j.block.extraAttrs = []mozpkcs7.Attribute{attr, attr}
	res := verifyModern(t, j.build(t))

	require.False(t, res.Verified)
	require.Len(t, res.Signers, 1)
	require.Equal(t, []IssueKind{IssueParseException}, issueKinds(res.Signers[0].Errors))
	assert.Equal(t, "META-INF/X.RSA", res.Signers[0].Errors[0].Params[0])
	assert.Contains(t, res.Signers[0].Errors[0].Error(), "duplicate signed attribute")
}

func TestVerifySigningCertificateRestrictions(t *testing.T) {
	tests := []struct {
		name     string
		opt      func(*x509.Certificate)
		expected string
	}{
		{
			name: "unknown critical extension",
			opt: func(c *x509.Certificate) {
				c.ExtraExtensions = []pkix.Extension{{
					Id:       asn1.ObjectIdentifier{1, 3, 6, 1, 4, 1, 99999, 1},
					Critical: true,
					Value:    []byte{0x05, 0x00},
				}}
			},
			expected: "unsupported critical extensions",
		},
		{
			name: "key usage without digital signature",
			opt: func(c *x509.Certificate) {
				c.KeyUsage = x509.KeyUsageKeyEncipherment
			},
			expected: "not authorized for use in digital signatures",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			j := sha256Jar(t)
			j.signer = newRSASignerWith(t, "Restricted", 5, tt.opt)
			res := verifyModern(t, j.build(t))

			require.False(t, res.Verified)
			require.Len(t, res.Signers, 1)
			require.Equal(t, []IssueKind{IssueVerifyException}, issueKinds(res.Signers[0].Errors))
			assert.Contains(t, res.Signers[0].Errors[0].Error(), tt.expected)
		})
	}
}

func TestVerifyManifestMainSectionDigest(t *testing.T) {
	entries := defaultEntries()
	manifest, sections := buildManifest(entries, jarSHA256)
	mainSection := manifest[:bytes.Index(manifest, []byte("\r\n\r\n"))+4]

	signer := newRSASigner(t, "Test Signer")
	opts := blockOptions{digestOid: mozpkcs7.OIDDigestAlgorithmSHA256, signedAttrs: true}

	// The whole manifest digest never matches, so the main section digest
	// decides.
	verifyWithMainDigest := func(mainDigest string) *Result {
		extra := "SHA-256-Digest-Manifest-Main-Attributes: " + mainDigest + "\r\n"
		sf := buildSigFile(jarSHA256, extra, []byte("stale manifest"), sections, "a.txt", "res/b.bin")
		return verifyModern(t, writeZip(t, append([]zipFile{
			{name: manifestName, data: manifest},
			{name: "META-INF/X.SF", data: sf},
			{name: "META-INF/X.RSA", data: signBlock(t, sf, signer, opts)},
		}, entries...)...))
	}

	res := verifyWithMainDigest(digestB64(crypto.SHA256, mainSection))
	require.True(t, res.Verified, "%v", res.Err())
	require.Len(t, res.Signers, 1)
	assert.Equal(t, []IssueKind{IssueZipEntryDigestDidNotVerify}, issueKinds(res.Signers[0].Warnings))

	res = verifyWithMainDigest(digestB64(crypto.SHA256, []byte("Manifest-Version: 2.0\r\n\r\n")))
	require.False(t, res.Verified)
	require.Len(t, res.Signers, 1)
	require.Equal(t, []IssueKind{IssueManifestMainSectionDigestDidNotVerify}, issueKinds(res.Signers[0].Errors))
	assert.Equal(t, "META-INF/X.SF", res.Signers[0].Errors[0].Params[1])
	assert.Equal(t, []IssueKind{IssueZipEntryDigestDidNotVerify}, issueKinds(res.Signers[0].Warnings))
}
