package jarverifier

import (
	"archive/zip"
	"bytes"
	"crypto"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/asn1"
	"encoding/base64"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	mozpkcs7 "go.mozilla.org/pkcs7"

	"github.com/avast/jarverifier/apilevel"
	"github.com/avast/jarverifier/signingblock"
)

type zipFile struct {
	name    string
	data    []byte
	deflate bool
}

type testKey struct {
	cert *x509.Certificate
	key  crypto.Signer
}

var (
	rsaKeyOnce sync.Once
	rsaKey     *rsa.PrivateKey
	rsaKeyErr  error
)

func testRSAKey(t *testing.T) *rsa.PrivateKey {
	t.Helper()
	rsaKeyOnce.Do(func() {
		rsaKey, rsaKeyErr = rsa.GenerateKey(rand.Reader, 2048)
	})
	require.NoError(t, rsaKeyErr)
	return rsaKey
}

func newTestCert(t *testing.T, cn string, serial int64, pub crypto.PublicKey, parent *testKey, signer crypto.Signer, opts ...func(*x509.Certificate)) *x509.Certificate {
	t.Helper()
	tmpl := &x509.Certificate{
		SerialNumber:          big.NewInt(serial),
		Subject:               pkix.Name{CommonName: cn, Organization: []string{"Avast"}, Country: []string{"CZ"}},
		NotBefore:             time.Now().Add(-time.Hour),
		NotAfter:              time.Now().Add(24 * time.Hour),
		KeyUsage:              x509.KeyUsageDigitalSignature | x509.KeyUsageCertSign,
		BasicConstraintsValid: true,
		IsCA:                  parent == nil,
	}
	for _, opt := range opts {
		opt(tmpl)
	}

	parentCert := tmpl
	if parent != nil {
		parentCert = parent.cert
		signer = parent.key
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, parentCert, pub, signer)
	require.NoError(t, err)
	cert, err := x509.ParseCertificate(der)
	require.NoError(t, err)
	return cert
}

func newRSASigner(t *testing.T, cn string) *testKey {
	return newRSASignerWith(t, cn, 1)
}

func newRSASignerWith(t *testing.T, cn string, serial int64, opts ...func(*x509.Certificate)) *testKey {
	key := testRSAKey(t)
	return &testKey{cert: newTestCert(t, cn, serial, &key.PublicKey, nil, key, opts...), key: key}
}

func newECSigner(t *testing.T, cn string) *testKey {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	return &testKey{cert: newTestCert(t, cn, 2, &key.PublicKey, nil, key), key: key}
}

func digestB64(h crypto.Hash, data []byte) string {
	hasher := h.New()
	hasher.Write(data)
	return base64.StdEncoding.EncodeToString(hasher.Sum(nil))
}

// jarDigest describes how manifest and signature file digests are named.
type jarDigest struct {
	hash crypto.Hash
	attr string
}

var (
	jarSHA1   = jarDigest{crypto.SHA1, "SHA1"}
	jarSHA256 = jarDigest{crypto.SHA256, "SHA-256"}
)

// buildManifest returns the manifest for files and the exact bytes of each
// of its named sections.
func buildManifest(files []zipFile, d jarDigest) ([]byte, map[string][]byte) {
	var buf bytes.Buffer
	buf.WriteString("Manifest-Version: 1.0\r\nCreated-By: 1.0 (Android)\r\n\r\n")

	sections := make(map[string][]byte)
	for _, f := range files {
		s := fmt.Sprintf("Name: %s\r\n%s-Digest: %s\r\n\r\n", f.name, d.attr, digestB64(d.hash, f.data))
		sections[f.name] = []byte(s)
		buf.WriteString(s)
	}
	return buf.Bytes(), sections
}

// buildSigFile returns a signature file. The whole manifest digest is left
// out when wholeManifest is nil.
func buildSigFile(d jarDigest, extraMain string, wholeManifest []byte, sections map[string][]byte, names ...string) []byte {
	var buf bytes.Buffer
	buf.WriteString("Signature-Version: 1.0\r\nCreated-By: 1.0 (Android)\r\n")
	buf.WriteString(extraMain)
	if wholeManifest != nil {
		fmt.Fprintf(&buf, "%s-Digest-Manifest: %s\r\n", d.attr, digestB64(d.hash, wholeManifest))
	}
	buf.WriteString("\r\n")

	for _, n := range names {
		fmt.Fprintf(&buf, "Name: %s\r\n%s-Digest: %s\r\n\r\n", n, d.attr, digestB64(d.hash, sections[n]))
	}
	return buf.Bytes()
}

type blockOptions struct {
	digestOid     asn1.ObjectIdentifier
	encryptionOid asn1.ObjectIdentifier
	signedAttrs   bool
	parents       []*x509.Certificate

	// signedContent replaces the .SF bytes as the signed content.
	signedContent []byte
	// contentType overrides the encapsulated content type after signing.
	contentType asn1.ObjectIdentifier
	extraAttrs  []mozpkcs7.Attribute
}

func signBlock(t *testing.T, sf []byte, k *testKey, opts blockOptions) []byte {
	t.Helper()
	content := sf
	if opts.signedContent != nil {
		content = opts.signedContent
	}
	sd, err := mozpkcs7.NewSignedData(content)
	require.NoError(t, err)

	if opts.digestOid != nil {
		sd.SetDigestAlgorithm(opts.digestOid)
	}
	if opts.encryptionOid != nil {
		sd.SetEncryptionAlgorithm(opts.encryptionOid)
	}

	if opts.signedAttrs {
		config := mozpkcs7.SignerInfoConfig{ExtraSignedAttributes: opts.extraAttrs}
		require.NoError(t, sd.AddSignerChain(k.cert, k.key, opts.parents, config))
	} else {
		require.NoError(t, sd.SignWithoutAttr(k.cert, k.key, mozpkcs7.SignerInfoConfig{}))
		for _, p := range opts.parents {
			sd.AddCertificate(p)
		}
	}
	sd.Detach()
	if opts.contentType != nil {
		sd.GetSignedData().ContentInfo.ContentType = opts.contentType
	}

	block, err := sd.Finish()
	require.NoError(t, err)
	return block
}

func writeZip(t *testing.T, files ...zipFile) []byte {
	t.Helper()
	var buf bytes.Buffer
	w := zip.NewWriter(&buf)
	for _, f := range files {
		method := zip.Store
		if f.deflate {
			method = zip.Deflate
		}
		fw, err := w.CreateHeader(&zip.FileHeader{Name: f.name, Method: method})
		require.NoError(t, err)
		_, err = fw.Write(f.data)
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())
	return buf.Bytes()
}

// signedJar is the typical single signer layout: the manifest covers
// entries and signer X signs all of them.
type signedJar struct {
	entries    []zipFile
	digest     jarDigest
	signer     *testKey
	blockName  string
	block      blockOptions
	sfExtra    string
	extraFiles []zipFile

	// patchBlock rewrites the signature block bytes before they are stored.
	patchBlock func(block []byte) []byte
}

func (j *signedJar) build(t *testing.T) []byte {
	t.Helper()
	manifest, sections := buildManifest(j.entries, j.digest)

	names := make([]string, 0, len(j.entries))
	for _, e := range j.entries {
		names = append(names, e.name)
	}
	sf := buildSigFile(j.digest, j.sfExtra, manifest, sections, names...)
	block := signBlock(t, sf, j.signer, j.block)
	if j.patchBlock != nil {
		block = j.patchBlock(block)
	}

	blockName := j.blockName
	if blockName == "" {
		blockName = "META-INF/X.RSA"
	}
	sfName := blockName[:strings.LastIndexByte(blockName, '.')] + ".SF"

	files := []zipFile{
		{name: manifestName, data: manifest, deflate: true},
		{name: sfName, data: sf, deflate: true},
		{name: blockName, data: block},
	}
	files = append(files, j.extraFiles...)
	files = append(files, j.entries...)
	return writeZip(t, files...)
}

func defaultEntries() []zipFile {
	return []zipFile{
		{name: "a.txt", data: []byte("hello world\n"), deflate: true},
		{name: "res/b.bin", data: bytes.Repeat([]byte{0xde, 0xad, 0xbe, 0xef}, 1024)},
	}
}

func verifyBytes(t *testing.T, data []byte, foundSchemes map[int]bool, minSdk, maxSdk int32) *Result {
	t.Helper()
	ds := signingblock.NewBytesDataSource(data)
	sections, err := signingblock.FindZipSections(ds)
	require.NoError(t, err)

	if foundSchemes == nil {
		foundSchemes = map[int]bool{}
	}
	res, err := Verify(ds, sections, signingblock.SchemeNames, foundSchemes, minSdk, maxSdk)
	require.NoError(t, err)
	return res
}

func verifyModern(t *testing.T, data []byte) *Result {
	t.Helper()
	return verifyBytes(t, data, nil, apilevel.V7_0_Nougat, apilevel.V_AnyMax)
}

func issueKinds(issues []*Issue) []IssueKind {
	res := make([]IssueKind, 0, len(issues))
	for _, i := range issues {
		res = append(res, i.Kind)
	}
	return res
}

func findIssues(issues []*Issue, kind IssueKind) []*Issue {
	var res []*Issue
	for _, i := range issues {
		if i.Kind == kind {
			res = append(res, i)
		}
	}
	return res
}
