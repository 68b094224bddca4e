package jarverifier

import (
	"fmt"
)

// IssueKind identifies a problem found while verifying JAR signatures.
type IssueKind int

const (
	IssueNoManifest IssueKind = iota + 1
	IssueUnnamedManifestSection
	IssueUnnamedSigFileSection
	IssueDuplicateManifestSection
	IssueDuplicateSigFileSection
	IssueDuplicateZipEntry
	IssueMissingZipEntryReferencedInManifest
	IssueMissingFile
	IssueNoSignatures
	IssueNoSigners
	IssueParseException
	IssueVerifyException
	IssueDidNotVerify
	IssueUnsupportedSigAlg
	IssueMissingVersionAttrInSigFile
	IssueNoManifestDigestInSigFile
	IssueNoZipEntryDigestInSigFile
	IssueNoZipEntryDigestInManifest
	IssueZipEntryDigestDidNotVerify
	IssueManifestMainSectionDigestDidNotVerify
	IssueManifestSectionDigestDidNotVerify
	IssueZipEntryNotSigned
	IssueZipEntrySignersMismatch
	IssueNoSignedZipEntries
	IssueUnprotectedZipEntry
	IssueNoApkSigStripProtection
	IssueMissingApkSigReferenced
	IssueUnknownApkSigSchemeID
	IssueMalformedCentralDirectory
	IssueMalformedZipEntry
)

var issueFormats = map[IssueKind]string{
	IssueNoManifest:                          "Missing META-INF/MANIFEST.MF",
	IssueUnnamedManifestSection:              "Manifest section #%d does not specify the name of the file it describes",
	IssueUnnamedSigFileSection:               "%s section #%d does not specify the name of the file it describes",
	IssueDuplicateManifestSection:            "Duplicate section in META-INF/MANIFEST.MF: %s",
	IssueDuplicateSigFileSection:             "Duplicate section in %s: %s",
	IssueDuplicateZipEntry:                   "Duplicate entry in the archive: %s",
	IssueMissingZipEntryReferencedInManifest: "%s entry referenced by META-INF/MANIFEST.MF not found in the archive",
	IssueMissingFile:                         "Partial JAR signature. Found: %s, missing: %s",
	IssueNoSignatures:                        "No JAR signatures",
	IssueNoSigners:                           "%s has no signers",
	IssueParseException:                      "Failed to parse %s: %v",
	IssueVerifyException:                     "Failed to verify JAR signature %s against %s: %v",
	IssueDidNotVerify:                        "JAR signature %s did not verify against %s",
	IssueUnsupportedSigAlg:                   "JAR signature %s uses digest algorithm %s and signature algorithm %s which is not supported on API Level(s) %s for which this APK is being verified (%s with %s)",
	IssueMissingVersionAttrInSigFile:         "Malformed %s: missing Signature-Version attribute",
	IssueNoManifestDigestInSigFile:           "%s does not specify digest of META-INF/MANIFEST.MF. This slows down verification.",
	IssueNoZipEntryDigestInSigFile:           "No digest for %s in %s",
	IssueNoZipEntryDigestInManifest:          "No digest for %s in META-INF/MANIFEST.MF",
	IssueZipEntryDigestDidNotVerify:          "%[2]s digest of %[1]s does not match the digest specified in %[3]s. Expected: <%[5]s>, actual: <%[4]s>",
	IssueManifestMainSectionDigestDidNotVerify: "%[1]s digest of META-INF/MANIFEST.MF main section does not match the digest specified in %[2]s. " +
		"Expected: <%[4]s>, actual: <%[3]s>",
	IssueManifestSectionDigestDidNotVerify: "%[2]s digest of META-INF/MANIFEST.MF section for %[1]s does not match the digest specified in %[3]s. " +
		"Expected: <%[5]s>, actual: <%[4]s>",
	IssueZipEntryNotSigned:         "%s entry not signed",
	IssueZipEntrySignersMismatch:   "Entries %[1]s and %[3]s are signed with different sets of signers: <%[2]s> vs <%[4]s>",
	IssueNoSignedZipEntries:        "No signed archive entries",
	IssueUnprotectedZipEntry:       "%s not protected by signature. Unauthorized modifications to this JAR entry will not be detected. Delete or move the entry outside of META-INF/.",
	IssueNoApkSigStripProtection:   "%s does not declare the block-based signature schemes used by this APK (X-Android-APK-Signed attribute missing)",
	IssueMissingApkSigReferenced:   "%[1]s indicates the APK is signed using %[3]s (ID %[2]d) but no such signature was found. Signature stripped?",
	IssueUnknownApkSigSchemeID:     "%s references unknown APK signature scheme ID: %d",
	IssueMalformedCentralDirectory: "Malformed ZIP Central Directory record #%d at offset %d: %v",
	IssueMalformedZipEntry:         "Malformed ZIP entry %s: %v",
}

var issueNames = map[IssueKind]string{
	IssueNoManifest:                            "JAR_SIG_NO_MANIFEST",
	IssueUnnamedManifestSection:                "JAR_SIG_UNNNAMED_MANIFEST_SECTION",
	IssueUnnamedSigFileSection:                 "JAR_SIG_UNNNAMED_SIG_FILE_SECTION",
	IssueDuplicateManifestSection:              "JAR_SIG_DUPLICATE_MANIFEST_SECTION",
	IssueDuplicateSigFileSection:               "JAR_SIG_DUPLICATE_SIG_FILE_SECTION",
	IssueDuplicateZipEntry:                     "JAR_SIG_DUPLICATE_ZIP_ENTRY",
	IssueMissingZipEntryReferencedInManifest:   "JAR_SIG_MISSING_ZIP_ENTRY_REFERENCED_IN_MANIFEST",
	IssueMissingFile:                           "JAR_SIG_MISSING_FILE",
	IssueNoSignatures:                          "JAR_SIG_NO_SIGNATURES",
	IssueNoSigners:                             "JAR_SIG_NO_SIGNERS",
	IssueParseException:                        "JAR_SIG_PARSE_EXCEPTION",
	IssueVerifyException:                       "JAR_SIG_VERIFY_EXCEPTION",
	IssueDidNotVerify:                          "JAR_SIG_DID_NOT_VERIFY",
	IssueUnsupportedSigAlg:                     "JAR_SIG_UNSUPPORTED_SIG_ALG",
	IssueMissingVersionAttrInSigFile:           "JAR_SIG_MISSING_VERSION_ATTR_IN_SIG_FILE",
	IssueNoManifestDigestInSigFile:             "JAR_SIG_NO_MANIFEST_DIGEST_IN_SIG_FILE",
	IssueNoZipEntryDigestInSigFile:             "JAR_SIG_NO_ZIP_ENTRY_DIGEST_IN_SIG_FILE",
	IssueNoZipEntryDigestInManifest:            "JAR_SIG_NO_ZIP_ENTRY_DIGEST_IN_MANIFEST",
	IssueZipEntryDigestDidNotVerify:            "JAR_SIG_ZIP_ENTRY_DIGEST_DID_NOT_VERIFY",
	IssueManifestMainSectionDigestDidNotVerify: "JAR_SIG_MANIFEST_MAIN_SECTION_DIGEST_DID_NOT_VERIFY",
	IssueManifestSectionDigestDidNotVerify:     "JAR_SIG_MANIFEST_SECTION_DIGEST_DID_NOT_VERIFY",
	IssueZipEntryNotSigned:                     "JAR_SIG_ZIP_ENTRY_NOT_SIGNED",
	IssueZipEntrySignersMismatch:               "JAR_SIG_ZIP_ENTRY_SIGNERS_MISMATCH",
	IssueNoSignedZipEntries:                    "JAR_SIG_NO_SIGNED_ZIP_ENTRIES",
	IssueUnprotectedZipEntry:                   "JAR_SIG_UNPROTECTED_ZIP_ENTRY",
	IssueNoApkSigStripProtection:               "JAR_SIG_NO_APK_SIG_STRIP_PROTECTION",
	IssueMissingApkSigReferenced:               "JAR_SIG_MISSING_APK_SIG_REFERENCED",
	IssueUnknownApkSigSchemeID:                 "JAR_SIG_UNKNOWN_APK_SIG_SCHEME_ID",
	IssueMalformedCentralDirectory:             "MALFORMED_CENTRAL_DIRECTORY",
	IssueMalformedZipEntry:                     "MALFORMED_ZIP_ENTRY",
}

func (k IssueKind) String() string {
	if n, prs := issueNames[k]; prs {
		return n
	}
	return fmt.Sprintf("IssueKind(%d)", int(k))
}

func (k IssueKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// Issue is a single error or warning. Params are positional and their
// meaning depends on Kind; text is only produced when the issue is printed.
type Issue struct {
	Kind   IssueKind
	Params []interface{}
}

func newIssue(kind IssueKind, params ...interface{}) *Issue {
	return &Issue{Kind: kind, Params: params}
}

func (i *Issue) Error() string {
	format, prs := issueFormats[i.Kind]
	if !prs {
		return fmt.Sprintf("%s %v", i.Kind, i.Params)
	}
	return fmt.Sprintf(format, i.Params...)
}

func (i *Issue) String() string {
	return i.Error()
}

// Is lets errors.Is match issues by kind.
func (i *Issue) Is(target error) bool {
	t, ok := target.(*Issue)
	return ok && t.Kind == i.Kind && len(t.Params) == 0
}

// ErrIssue returns a value that errors.Is matches against any issue of kind.
func ErrIssue(kind IssueKind) error {
	return &Issue{Kind: kind}
}
