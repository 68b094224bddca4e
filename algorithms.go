package jarverifier

import (
	"crypto"
	"encoding/base64"
	"hash"
	"strings"

	// hashes are looked up through crypto.Hash
	_ "crypto/md5"
	_ "crypto/sha1"
	_ "crypto/sha256"
	_ "crypto/sha512"

	"github.com/avast/jarverifier/apilevel"
)

const (
	oidDigestMD5    = "1.2.840.113549.2.5"
	oidDigestSHA1   = "1.3.14.3.2.26"
	oidDigestSHA224 = "2.16.840.1.101.3.4.2.4"
	oidDigestSHA256 = "2.16.840.1.101.3.4.2.1"
	oidDigestSHA384 = "2.16.840.1.101.3.4.2.2"
	oidDigestSHA512 = "2.16.840.1.101.3.4.2.3"

	oidSigRSA           = "1.2.840.113549.1.1.1"
	oidSigMD5WithRSA    = "1.2.840.113549.1.1.4"
	oidSigSHA1WithRSA   = "1.2.840.113549.1.1.5"
	oidSigSHA224WithRSA = "1.2.840.113549.1.1.14"
	oidSigSHA256WithRSA = "1.2.840.113549.1.1.11"
	oidSigSHA384WithRSA = "1.2.840.113549.1.1.12"
	oidSigSHA512WithRSA = "1.2.840.113549.1.1.13"

	oidSigDSA           = "1.2.840.10040.4.1"
	oidSigSHA1WithDSA   = "1.2.840.10040.4.3"
	oidSigSHA224WithDSA = "2.16.840.1.101.3.4.3.1"
	oidSigSHA256WithDSA = "2.16.840.1.101.3.4.3.2"

	oidSigECPublicKey     = "1.2.840.10045.2.1"
	oidSigSHA1WithECDSA   = "1.2.840.10045.4.1"
	oidSigSHA224WithECDSA = "1.2.840.10045.4.3.1"
	oidSigSHA256WithECDSA = "1.2.840.10045.4.3.2"
	oidSigSHA384WithECDSA = "1.2.840.10045.4.3.3"
	oidSigSHA512WithECDSA = "1.2.840.10045.4.3.4"
)

var (
	from    = apilevel.From
	between = apilevel.Between
)

// Platform levels on which the PKCS#7 (digest, signature) pair is accepted,
// keyed by "<digest oid> <signature oid>".
var supportedSigAlgs = map[string]apilevel.Ranges{
	oidDigestMD5 + " " + oidSigRSA:           {from(0)},
	oidDigestMD5 + " " + oidSigMD5WithRSA:    {between(0, 8), from(21)},
	oidDigestMD5 + " " + oidSigSHA1WithRSA:   {between(21, 23)},
	oidDigestMD5 + " " + oidSigSHA224WithRSA: {between(21, 23)},
	oidDigestMD5 + " " + oidSigSHA256WithRSA: {between(21, 23)},
	oidDigestMD5 + " " + oidSigSHA384WithRSA: {between(21, 23)},
	oidDigestMD5 + " " + oidSigSHA512WithRSA: {between(21, 23)},

	oidDigestSHA1 + " " + oidSigRSA:           {from(0)},
	oidDigestSHA1 + " " + oidSigMD5WithRSA:    {between(21, 23)},
	oidDigestSHA1 + " " + oidSigSHA1WithRSA:   {from(0)},
	oidDigestSHA1 + " " + oidSigSHA224WithRSA: {between(21, 23)},
	oidDigestSHA1 + " " + oidSigSHA256WithRSA: {between(21, 23)},
	oidDigestSHA1 + " " + oidSigSHA384WithRSA: {between(21, 23)},
	oidDigestSHA1 + " " + oidSigSHA512WithRSA: {between(21, 23)},

	oidDigestSHA224 + " " + oidSigRSA:           {between(0, 8), from(21)},
	oidDigestSHA224 + " " + oidSigMD5WithRSA:    {between(21, 23)},
	oidDigestSHA224 + " " + oidSigSHA1WithRSA:   {between(21, 23)},
	oidDigestSHA224 + " " + oidSigSHA224WithRSA: {between(0, 8), from(21)},
	oidDigestSHA224 + " " + oidSigSHA256WithRSA: {between(21, 21)},
	oidDigestSHA224 + " " + oidSigSHA384WithRSA: {between(21, 23)},
	oidDigestSHA224 + " " + oidSigSHA512WithRSA: {between(21, 23)},

	oidDigestSHA256 + " " + oidSigRSA:           {between(0, 8), from(18)},
	oidDigestSHA256 + " " + oidSigMD5WithRSA:    {between(21, 23)},
	oidDigestSHA256 + " " + oidSigSHA1WithRSA:   {between(21, 21)},
	oidDigestSHA256 + " " + oidSigSHA224WithRSA: {between(21, 23)},
	oidDigestSHA256 + " " + oidSigSHA256WithRSA: {between(0, 8), from(18)},
	oidDigestSHA256 + " " + oidSigSHA384WithRSA: {between(21, 23)},
	oidDigestSHA256 + " " + oidSigSHA512WithRSA: {between(21, 23)},

	oidDigestSHA384 + " " + oidSigRSA:           {from(18)},
	oidDigestSHA384 + " " + oidSigMD5WithRSA:    {between(21, 23)},
	oidDigestSHA384 + " " + oidSigSHA1WithRSA:   {between(21, 23)},
	oidDigestSHA384 + " " + oidSigSHA224WithRSA: {between(21, 23)},
	oidDigestSHA384 + " " + oidSigSHA256WithRSA: {between(21, 23)},
	oidDigestSHA384 + " " + oidSigSHA384WithRSA: {from(21)},
	oidDigestSHA384 + " " + oidSigSHA512WithRSA: {between(21, 23)},

	oidDigestSHA512 + " " + oidSigRSA:           {from(18)},
	oidDigestSHA512 + " " + oidSigMD5WithRSA:    {between(21, 23)},
	oidDigestSHA512 + " " + oidSigSHA1WithRSA:   {between(21, 23)},
	oidDigestSHA512 + " " + oidSigSHA224WithRSA: {between(21, 23)},
	oidDigestSHA512 + " " + oidSigSHA256WithRSA: {between(21, 23)},
	oidDigestSHA512 + " " + oidSigSHA384WithRSA: {between(21, 21)},
	oidDigestSHA512 + " " + oidSigSHA512WithRSA: {from(21)},

	oidDigestMD5 + " " + oidSigSHA1WithDSA:   {between(21, 23)},
	oidDigestMD5 + " " + oidSigSHA224WithDSA: {between(21, 23)},
	oidDigestMD5 + " " + oidSigSHA256WithDSA: {between(21, 23)},

	oidDigestSHA1 + " " + oidSigDSA:           {from(0)},
	oidDigestSHA1 + " " + oidSigSHA1WithDSA:   {from(9)},
	oidDigestSHA1 + " " + oidSigSHA224WithDSA: {between(21, 23)},
	oidDigestSHA1 + " " + oidSigSHA256WithDSA: {between(21, 23)},

	oidDigestSHA224 + " " + oidSigDSA:           {from(22)},
	oidDigestSHA224 + " " + oidSigSHA1WithDSA:   {between(21, 23)},
	oidDigestSHA224 + " " + oidSigSHA224WithDSA: {from(21)},
	oidDigestSHA224 + " " + oidSigSHA256WithDSA: {between(21, 23)},

	oidDigestSHA256 + " " + oidSigDSA:           {from(22)},
	oidDigestSHA256 + " " + oidSigSHA1WithDSA:   {between(21, 23)},
	oidDigestSHA256 + " " + oidSigSHA224WithDSA: {between(21, 23)},
	oidDigestSHA256 + " " + oidSigSHA256WithDSA: {from(21)},

	oidDigestSHA384 + " " + oidSigSHA1WithDSA:   {between(21, 23)},
	oidDigestSHA384 + " " + oidSigSHA224WithDSA: {between(21, 23)},
	oidDigestSHA384 + " " + oidSigSHA256WithDSA: {between(21, 23)},

	oidDigestSHA512 + " " + oidSigSHA1WithDSA:   {between(21, 23)},
	oidDigestSHA512 + " " + oidSigSHA224WithDSA: {between(21, 23)},
	oidDigestSHA512 + " " + oidSigSHA256WithDSA: {between(21, 23)},

	oidDigestSHA1 + " " + oidSigECPublicKey:   {from(18)},
	oidDigestSHA224 + " " + oidSigECPublicKey: {from(21)},
	oidDigestSHA256 + " " + oidSigECPublicKey: {from(18)},
	oidDigestSHA384 + " " + oidSigECPublicKey: {from(18)},
	oidDigestSHA512 + " " + oidSigECPublicKey: {from(18)},

	oidDigestMD5 + " " + oidSigSHA1WithECDSA:   {between(21, 23)},
	oidDigestMD5 + " " + oidSigSHA224WithECDSA: {between(21, 23)},
	oidDigestMD5 + " " + oidSigSHA256WithECDSA: {between(21, 23)},
	oidDigestMD5 + " " + oidSigSHA384WithECDSA: {between(21, 23)},
	oidDigestMD5 + " " + oidSigSHA512WithECDSA: {between(21, 23)},

	oidDigestSHA1 + " " + oidSigSHA1WithECDSA:   {from(18)},
	oidDigestSHA1 + " " + oidSigSHA224WithECDSA: {between(21, 23)},
	oidDigestSHA1 + " " + oidSigSHA256WithECDSA: {between(21, 23)},
	oidDigestSHA1 + " " + oidSigSHA384WithECDSA: {between(21, 23)},
	oidDigestSHA1 + " " + oidSigSHA512WithECDSA: {between(21, 23)},

	oidDigestSHA224 + " " + oidSigSHA1WithECDSA:   {between(21, 23)},
	oidDigestSHA224 + " " + oidSigSHA224WithECDSA: {from(21)},
	oidDigestSHA224 + " " + oidSigSHA256WithECDSA: {between(21, 23)},
	oidDigestSHA224 + " " + oidSigSHA384WithECDSA: {between(21, 23)},
	oidDigestSHA224 + " " + oidSigSHA512WithECDSA: {between(21, 23)},

	oidDigestSHA256 + " " + oidSigSHA1WithECDSA:   {between(21, 23)},
	oidDigestSHA256 + " " + oidSigSHA224WithECDSA: {between(21, 23)},
	oidDigestSHA256 + " " + oidSigSHA256WithECDSA: {from(21)},
	oidDigestSHA256 + " " + oidSigSHA384WithECDSA: {between(21, 23)},
	oidDigestSHA256 + " " + oidSigSHA512WithECDSA: {between(21, 23)},

	oidDigestSHA384 + " " + oidSigSHA1WithECDSA:   {between(21, 23)},
	oidDigestSHA384 + " " + oidSigSHA224WithECDSA: {between(21, 23)},
	oidDigestSHA384 + " " + oidSigSHA256WithECDSA: {between(21, 23)},
	oidDigestSHA384 + " " + oidSigSHA384WithECDSA: {from(21)},
	oidDigestSHA384 + " " + oidSigSHA512WithECDSA: {between(21, 23)},

	oidDigestSHA512 + " " + oidSigSHA1WithECDSA:   {between(21, 23)},
	oidDigestSHA512 + " " + oidSigSHA224WithECDSA: {between(21, 23)},
	oidDigestSHA512 + " " + oidSigSHA256WithECDSA: {between(21, 23)},
	oidDigestSHA512 + " " + oidSigSHA384WithECDSA: {between(21, 23)},
	oidDigestSHA512 + " " + oidSigSHA512WithECDSA: {from(21)},
}

var oidFriendlyNames = map[string]string{
	oidDigestMD5:    "MD5",
	oidDigestSHA1:   "SHA-1",
	oidDigestSHA224: "SHA-224",
	oidDigestSHA256: "SHA-256",
	oidDigestSHA384: "SHA-384",
	oidDigestSHA512: "SHA-512",

	oidSigRSA:           "RSA",
	oidSigMD5WithRSA:    "MD5 with RSA",
	oidSigSHA1WithRSA:   "SHA-1 with RSA",
	oidSigSHA224WithRSA: "SHA-224 with RSA",
	oidSigSHA256WithRSA: "SHA-256 with RSA",
	oidSigSHA384WithRSA: "SHA-384 with RSA",
	oidSigSHA512WithRSA: "SHA-512 with RSA",

	oidSigDSA:           "DSA",
	oidSigSHA1WithDSA:   "SHA-1 with DSA",
	oidSigSHA224WithDSA: "SHA-224 with DSA",
	oidSigSHA256WithDSA: "SHA-256 with DSA",

	oidSigECPublicKey:     "ECDSA",
	oidSigSHA1WithECDSA:   "SHA-1 with ECDSA",
	oidSigSHA224WithECDSA: "SHA-224 with ECDSA",
	oidSigSHA256WithECDSA: "SHA-256 with ECDSA",
	oidSigSHA384WithECDSA: "SHA-384 with ECDSA",
	oidSigSHA512WithECDSA: "SHA-512 with ECDSA",
}

// Hash of the PKCS#7 digest algorithm identifiers.
var digestOidHashes = map[string]crypto.Hash{
	oidDigestMD5:    crypto.MD5,
	oidDigestSHA1:   crypto.SHA1,
	oidDigestSHA224: crypto.SHA224,
	oidDigestSHA256: crypto.SHA256,
	oidDigestSHA384: crypto.SHA384,
	oidDigestSHA512: crypto.SHA512,
}

type keyAlgorithm int

const (
	keyRSA keyAlgorithm = iota
	keyDSA
	keyECDSA
)

type sigAlgorithm struct {
	key  keyAlgorithm
	hash crypto.Hash // zero when the digest algorithm decides
}

var sigOidAlgorithms = map[string]sigAlgorithm{
	oidSigRSA:           {keyRSA, 0},
	oidSigMD5WithRSA:    {keyRSA, crypto.MD5},
	oidSigSHA1WithRSA:   {keyRSA, crypto.SHA1},
	oidSigSHA224WithRSA: {keyRSA, crypto.SHA224},
	oidSigSHA256WithRSA: {keyRSA, crypto.SHA256},
	oidSigSHA384WithRSA: {keyRSA, crypto.SHA384},
	oidSigSHA512WithRSA: {keyRSA, crypto.SHA512},

	oidSigDSA:           {keyDSA, 0},
	oidSigSHA1WithDSA:   {keyDSA, crypto.SHA1},
	oidSigSHA224WithDSA: {keyDSA, crypto.SHA224},
	oidSigSHA256WithDSA: {keyDSA, crypto.SHA256},

	oidSigECPublicKey:     {keyECDSA, 0},
	oidSigSHA1WithECDSA:   {keyECDSA, crypto.SHA1},
	oidSigSHA224WithECDSA: {keyECDSA, crypto.SHA224},
	oidSigSHA256WithECDSA: {keyECDSA, crypto.SHA256},
	oidSigSHA384WithECDSA: {keyECDSA, crypto.SHA384},
	oidSigSHA512WithECDSA: {keyECDSA, crypto.SHA512},
}

func friendlyOidName(oid string) string {
	if n, prs := oidFriendlyNames[oid]; prs {
		return n
	}
	return oid
}

// unsupportedSigAlgRanges returns the levels of minSdk..maxSdk on which the
// pair is not accepted. Empty when the whole range is supported.
func unsupportedSigAlgRanges(digestOid, sigOid string, minSdkVersion, maxSdkVersion int32) apilevel.Ranges {
	return apilevel.Uncovered(minSdkVersion, maxSdkVersion, supportedSigAlgs[digestOid+" "+sigOid])
}

// signatureHash picks the hash the signature is computed with. A signature
// OID which names a hash wins over the digest algorithm.
func signatureHash(digestOid, sigOid string) (sigAlgorithm, bool) {
	alg, prs := sigOidAlgorithms[sigOid]
	if !prs {
		return alg, false
	}
	if alg.hash == 0 {
		if alg.hash, prs = digestOidHashes[digestOid]; !prs {
			return alg, false
		}
	}
	return alg, true
}

// Manifest and signature file digests.

const (
	digestMD5    = "MD5"
	digestSHA1   = "SHA-1"
	digestSHA256 = "SHA-256"
	digestSHA384 = "SHA-384"
	digestSHA512 = "SHA-512"
)

// Strongest first, as picked by JB MR2 and newer.
var modernDigestAlgorithms = [...]string{
	digestSHA512,
	digestSHA384,
	digestSHA256,
	digestSHA1,
}

var canonicalDigestNames = map[string]string{
	"MD5":     digestMD5,
	"SHA":     digestSHA1,
	"SHA1":    digestSHA1,
	"SHA-1":   digestSHA1,
	"SHA-256": digestSHA256,
	"SHA-384": digestSHA384,
	"SHA-512": digestSHA512,
}

var manifestDigestMinSdk = map[string]int32{
	digestMD5:    0,
	digestSHA1:   0,
	digestSHA256: 0,
	digestSHA384: apilevel.V2_3_Gingerbread,
	digestSHA512: apilevel.V2_3_Gingerbread,
}

var manifestDigestHashes = map[string]crypto.Hash{
	digestMD5:    crypto.MD5,
	digestSHA1:   crypto.SHA1,
	digestSHA256: crypto.SHA256,
	digestSHA384: crypto.SHA384,
	digestSHA512: crypto.SHA512,
}

type namedDigest struct {
	algorithm string
	digest    []byte
}

func (d *namedDigest) newHash() hash.Hash {
	return manifestDigestHashes[d.algorithm].New()
}

func digestAttributeName(algorithm, suffix string) string {
	if algorithm == digestSHA1 {
		return "SHA1" + suffix
	}
	return algorithm + suffix
}

// Undecodable values yield an empty digest which never matches.
func decodeDigest(value string) []byte {
	res, err := base64.StdEncoding.DecodeString(strings.TrimSpace(value))
	if err != nil {
		return []byte{}
	}
	return res
}

// digestsToVerify selects the digests of a section which the platforms in
// minSdk..maxSdk would check. An empty result means that at least part of
// the range verifies nothing and must be treated as a failure.
func digestsToVerify(s *section, suffix string, minSdkVersion, maxSdkVersion int32) []namedDigest {
	var res []namedDigest
	if !apilevel.PrefersStrongDigests(minSdkVersion) {
		algs, prs := s.Get(attrDigestAlgorithms)
		if !prs {
			algs = "SHA SHA1"
		}

		for _, token := range strings.Fields(algs) {
			value, prs := s.Get(token + suffix)
			if !prs {
				continue
			}
			alg, known := canonicalDigestNames[strings.ToUpper(token)]
			if !known || manifestDigestMinSdk[alg] > minSdkVersion {
				continue
			}
			res = append(res, namedDigest{alg, decodeDigest(value)})
			break
		}

		if len(res) == 0 {
			return res
		}
	}

	if apilevel.PrefersStrongDigests(maxSdkVersion) {
		for _, alg := range modernDigestAlgorithms {
			value, prs := s.Get(digestAttributeName(alg, suffix))
			if !prs {
				continue
			}
			digest := decodeDigest(value)
			if !containsDigest(res, alg, digest) {
				res = append(res, namedDigest{alg, digest})
			}
			break
		}
	}
	return res
}

func containsDigest(digests []namedDigest, alg string, digest []byte) bool {
	for _, d := range digests {
		if d.algorithm == alg && string(d.digest) == string(digest) {
			return true
		}
	}
	return false
}
