package jarverifier

import (
	"bytes"
	"encoding/base64"
	"log/slog"
	"strconv"
	"strings"

	"github.com/avast/jarverifier/apilevel"
)

const manifestName = "META-INF/MANIFEST.MF"

// verifySigFile checks the signer's .SF file against the manifest. It
// collects the entry names the .SF file covers and may mark the signer
// ignored.
func (v *verifier) verifySigFile(s *signer) {
	sigFileName := s.sigFileEntry.Name
	sf := parseManifest(s.sigFileBytes)

	if _, prs := sf.main.Get(attrSignatureVersion); !prs {
		s.info.addError(IssueMissingVersionAttrInSigFile, sigFileName)
		s.ignored = true
		return
	}

	if apilevel.ChecksStrippingProtection(v.maxSdkVersion) {
		v.checkStrippedSchemes(s, sf.main)
		if s.info.ContainsErrors() {
			return
		}
	}

	createdBySigntool := false
	if createdBy, prs := sf.main.Get(attrCreatedBy); prs {
		createdBySigntool = strings.Contains(createdBy, "signtool")
	}

	manifestVerified := v.verifyWholeManifestDigest(s, sf.main, createdBySigntool)
	if !createdBySigntool {
		v.verifyManifestMainSectionDigest(s, sf.main)
	}
	if s.info.ContainsErrors() {
		return
	}

	if manifestVerified {
		v.log.Debug("whole manifest digest verified, skipping section digests", slog.String("signer", s.name))
	}

	names := make(map[string]bool, len(sf.sections))
	for i, sfSection := range sf.sections {
		name, ok := sfSection.Name()
		if !ok {
			s.info.addError(IssueUnnamedSigFileSection, sigFileName, i+1)
			s.ignored = true
			return
		}
		if names[name] {
			s.info.addError(IssueDuplicateSigFileSection, sigFileName, name)
			s.ignored = true
			return
		}
		names[name] = true

		if manifestVerified {
			continue
		}

		manifestSection, prs := v.manifestSections[name]
		if !prs {
			s.info.addError(IssueNoZipEntryDigestInSigFile, name, sigFileName)
			s.ignored = true
			continue
		}
		v.verifyManifestSectionDigest(s, sfSection, name, manifestSection, createdBySigntool)
	}
	s.sigFileEntryNames = names
}

// verifyWholeManifestDigest reports whether the manifest as a whole matches
// the digest declared in the .SF main section.
func (v *verifier) verifyWholeManifestDigest(s *signer, sfMain *section, createdBySigntool bool) bool {
	suffix := attrDigestManifestSuffix
	if createdBySigntool {
		suffix = attrDigestSuffix
	}

	expected := digestsToVerify(sfMain, suffix, v.minSdkVersion, v.maxSdkVersion)
	if len(expected) == 0 {
		s.info.addWarning(IssueNoManifestDigestInSigFile, s.sigFileEntry.Name)
		return false
	}

	verified := true
	for i := range expected {
		actual := computeDigest(&expected[i], v.manifest.rawData)
		if !bytes.Equal(actual, expected[i].digest) {
			s.info.addWarning(IssueZipEntryDigestDidNotVerify, manifestName, expected[i].algorithm,
				s.sigFileEntry.Name, encodeDigest(actual), encodeDigest(expected[i].digest))
			verified = false
		}
	}
	return verified
}

func (v *verifier) verifyManifestMainSectionDigest(s *signer, sfMain *section) {
	expected := digestsToVerify(sfMain, attrDigestMainAttrSuffix, v.minSdkVersion, v.maxSdkVersion)
	for i := range expected {
		actual := computeDigest(&expected[i], v.manifest.main.bytes(v.manifest.rawData))
		if !bytes.Equal(actual, expected[i].digest) {
			s.info.addError(IssueManifestMainSectionDigestDidNotVerify, expected[i].algorithm,
				s.sigFileEntry.Name, encodeDigest(actual), encodeDigest(expected[i].digest))
		}
	}
}

func (v *verifier) verifyManifestSectionDigest(s *signer, sfSection *section, name string, manifestSection *section, createdBySigntool bool) {
	expected := digestsToVerify(sfSection, attrDigestSuffix, v.minSdkVersion, v.maxSdkVersion)
	if len(expected) == 0 {
		s.info.addError(IssueNoZipEntryDigestInSigFile, name, s.sigFileEntry.Name)
		return
	}

	data := manifestSection.bytes(v.manifest.rawData)
	if createdBySigntool {
		data = trimSigntoolSection(data)
	}

	for i := range expected {
		actual := computeDigest(&expected[i], data)
		if !bytes.Equal(actual, expected[i].digest) {
			s.info.addError(IssueManifestSectionDigestDidNotVerify, name, expected[i].algorithm,
				s.sigFileEntry.Name, encodeDigest(actual), encodeDigest(expected[i].digest))
		}
	}
}

// signtool digests manifest sections without their terminating blank line.
func trimSigntoolSection(data []byte) []byte {
	switch {
	case bytes.HasSuffix(data, []byte("\r\n\r\n")):
		return data[:len(data)-2]
	case bytes.HasSuffix(data, []byte("\n\n")):
		return data[:len(data)-1]
	}
	return data
}

// checkStrippedSchemes rejects signers whose X-Android-APK-Signed attribute
// names a block-based scheme which is known but was not found in the APK.
func (v *verifier) checkStrippedSchemes(s *signer, sfMain *section) {
	signedWith, prs := sfMain.Get(attrAndroidApkSigned)
	if !prs {
		if len(v.foundSchemeIDs) != 0 {
			s.info.addWarning(IssueNoApkSigStripProtection, s.sigFileEntry.Name)
		}
		return
	}

	if len(v.supportedSchemeNames) == 0 {
		return
	}

	var expected []int
	seen := make(map[int]bool)
	for _, token := range strings.Split(signedWith, ",") {
		token = strings.TrimSpace(token)
		if token == "" {
			continue
		}
		id, err := strconv.Atoi(token)
		if err != nil {
			continue
		}

		if _, prs := v.supportedSchemeNames[id]; !prs {
			s.info.addWarning(IssueUnknownApkSigSchemeID, s.sigFileEntry.Name, id)
		} else if !seen[id] {
			seen[id] = true
			expected = append(expected, id)
		}
	}

	for _, id := range expected {
		if !v.foundSchemeIDs[id] {
			s.info.addError(IssueMissingApkSigReferenced, s.sigFileEntry.Name, id, v.supportedSchemeNames[id])
		}
	}
}

func computeDigest(d *namedDigest, data []byte) []byte {
	h := d.newHash()
	h.Write(data)
	return h.Sum(nil)
}

func encodeDigest(d []byte) string {
	return base64.StdEncoding.EncodeToString(d)
}
