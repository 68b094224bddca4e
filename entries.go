package jarverifier

import (
	"bytes"
	"hash"
	"io"
	"log/slog"
	"strings"
)

const metaInfPrefix = "META-INF/"

// Entries inside META-INF/ and directories are not listed in the manifest.
func isEntryDigestNeededInManifest(name string) bool {
	return !strings.HasPrefix(name, metaInfPrefix) && !strings.HasSuffix(name, "/")
}

// verifyEntries checks the digest of every entry the manifest must cover
// and returns the signers which signed all of them. All entries are
// processed even after errors are found.
func (v *verifier) verifyEntries(signers []*signer) []*signer {
	var firstSigners []*signer
	var firstSignedEntry string

	for _, e := range v.catalog.byLocalHeaderOffset() {
		if !isEntryDigestNeededInManifest(e.Name) {
			continue
		}

		manifestSection, prs := v.manifestSections[e.Name]
		if !prs {
			v.res.addError(IssueNoZipEntryDigestInManifest, e.Name)
			continue
		}

		var entrySigners []*signer
		for _, s := range signers {
			if s.sigFileEntryNames[e.Name] {
				entrySigners = append(entrySigners, s)
			}
		}
		if len(entrySigners) == 0 {
			v.res.addError(IssueZipEntryNotSigned, e.Name)
			continue
		}

		if firstSigners == nil {
			firstSigners = entrySigners
			firstSignedEntry = e.Name
		} else if !sameSigners(firstSigners, entrySigners) {
			v.res.addError(IssueZipEntrySignersMismatch, firstSignedEntry, signerNames(firstSigners),
				e.Name, signerNames(entrySigners))
			continue
		}

		expected := digestsToVerify(manifestSection, attrDigestSuffix, v.minSdkVersion, v.maxSdkVersion)
		if len(expected) == 0 {
			v.res.addError(IssueNoZipEntryDigestInManifest, e.Name)
			continue
		}

		hashers := make([]hash.Hash, len(expected))
		writers := make([]io.Writer, len(expected))
		for i := range expected {
			hashers[i] = expected[i].newHash()
			writers[i] = hashers[i]
		}

		if err := writeEntryTo(io.MultiWriter(writers...), v.apk, e, v.sections.CentralDirectoryOffset); err != nil {
			v.res.addError(IssueMalformedZipEntry, e.Name, err)
			continue
		}

		for i := range expected {
			actual := hashers[i].Sum(nil)
			if !bytes.Equal(actual, expected[i].digest) {
				v.log.Debug("entry digest mismatch", slog.String("entry", e.Name), slog.String("algorithm", expected[i].algorithm))
				v.res.addError(IssueZipEntryDigestDidNotVerify, e.Name, expected[i].algorithm,
					manifestName, encodeDigest(actual), encodeDigest(expected[i].digest))
			}
		}
	}

	if firstSigners == nil {
		v.res.addError(IssueNoSignedZipEntries)
		return nil
	}
	return firstSigners
}

// reportUnprotectedEntries warns about META-INF/ files which are neither the
// manifest nor a signature artifact of an accepted signer.
func (v *verifier) reportUnprotectedEntries(accepted []*signer) {
	signatureEntries := map[string]bool{
		manifestName: true,
	}
	for _, s := range accepted {
		signatureEntries[s.sigFileEntry.Name] = true
		signatureEntries[s.sigBlockEntry.Name] = true
	}

	for _, e := range v.catalog.files {
		if strings.HasPrefix(e.Name, metaInfPrefix) && !signatureEntries[e.Name] {
			v.res.addWarning(IssueUnprotectedZipEntry, e.Name)
		}
	}
}

func sameSigners(a, b []*signer) bool {
	if len(a) != len(b) {
		return false
	}
	set := make(map[*signer]bool, len(a))
	for _, s := range a {
		set[s] = true
	}
	for _, s := range b {
		if !set[s] {
			return false
		}
	}
	return true
}

func signerNames(signers []*signer) string {
	names := make([]string, 0, len(signers))
	for _, s := range signers {
		names = append(names, s.name)
	}
	return strings.Join(names, ", ")
}
