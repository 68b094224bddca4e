// Package jarverifier verifies JAR (APK Signature Scheme v1) signatures of
// APK and JAR files the way Android does, for a range of platform versions.
// Newer block-based schemes are only detected, to catch stripped signatures.
package jarverifier

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/avast/jarverifier/signingblock"
)

// DataSource gives random-offset access to the archive bytes.
type DataSource = signingblock.DataSource

// ZipSections locates the central directory of the archive.
type ZipSections = signingblock.ZipSections

var ErrMixedDexApkFile = errors.New("This file is both DEX and ZIP archive! Exploit?")

const (
	dexHeaderMagic uint32 = 0xa786564 // "dex\n", littleendinan
)

type options struct {
	log *slog.Logger
}

type Option func(*options)

// WithLogger sets the logger which receives debug messages about the
// verification stages. Nothing is logged by default.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.log = l
		}
	}
}

// signer is a pair of signature file and signature block being verified.
type signer struct {
	name          string
	sigFileEntry  *Entry
	sigBlockEntry *Entry
	info          *SignerInfo
	ignored       bool

	sigFileBytes      []byte
	sigFileEntryNames map[string]bool
}

type verifier struct {
	apk                  DataSource
	sections             *ZipSections
	supportedSchemeNames map[int]string
	foundSchemeIDs       map[int]bool
	minSdkVersion        int32
	maxSdkVersion        int32
	log                  *slog.Logger

	res              *Result
	catalog          *entryCatalog
	manifest         *manifest
	manifestSections map[string]*section
}

// Verify checks the JAR signatures of apk for platform versions
// minSdkVersion..maxSdkVersion, both inclusive. supportedSchemeNames lists
// the block-based schemes the caller knows about and foundSchemeIDs the ones
// present in the APK; they drive the stripping protection check.
//
// Problems with the archive are reported in the Result. The returned error
// is only set for invalid arguments or when apk can't be read.
func Verify(apk DataSource, sections *ZipSections, supportedSchemeNames map[int]string, foundSchemeIDs map[int]bool,
	minSdkVersion, maxSdkVersion int32, opts ...Option) (*Result, error) {
	if minSdkVersion > maxSdkVersion {
		return nil, fmt.Errorf("minSdkVersion (%d) > maxSdkVersion (%d)", minSdkVersion, maxSdkVersion)
	}
	if sections == nil {
		return nil, errors.New("zip sections are required")
	}

	o := options{log: slog.New(slog.NewTextHandler(io.Discard, nil))}
	for _, opt := range opts {
		opt(&o)
	}

	v := &verifier{
		apk:                  apk,
		sections:             sections,
		supportedSchemeNames: supportedSchemeNames,
		foundSchemeIDs:       foundSchemeIDs,
		minSdkVersion:        minSdkVersion,
		maxSdkVersion:        maxSdkVersion,
		log:                  o.log.With(slog.Int("minSdk", int(minSdkVersion)), slog.Int("maxSdk", int(maxSdkVersion))),
		res:                  &Result{},
	}
	if err := v.run(); err != nil {
		return nil, err
	}
	return v.res, nil
}

// gate reports whether the result already failed, in which case no further
// stage may run.
func (v *verifier) gate(stage string) bool {
	if v.res.ContainsErrors() {
		v.log.Debug("verification aborted", slog.String("stage", stage), slog.Int("errors", len(v.res.Errors)))
		return true
	}
	v.log.Debug("stage passed", slog.String("stage", stage))
	return false
}

func (v *verifier) run() error {
	cd, err := signingblock.ReadAt(v.apk, v.sections.CentralDirectoryOffset, v.sections.CentralDirectorySize)
	if err != nil {
		return fmt.Errorf("failed to read central directory: %w", err)
	}

	var duplicates []string
	v.catalog, duplicates, err = parseCentralDirectory(cd, v.sections.CentralDirectoryOffset, v.sections.CentralDirectoryRecordCount)
	if err != nil {
		var merr *malformedRecordError
		if errors.As(err, &merr) {
			v.res.addError(IssueMalformedCentralDirectory, merr.number, merr.offset, merr.err)
			return nil
		}
		return err
	}
	for _, name := range duplicates {
		v.res.addError(IssueDuplicateZipEntry, name)
	}
	if v.gate("central directory") {
		return nil
	}

	manifestEntry, sigFiles, sigBlocks := v.findSignatureEntries()
	if manifestEntry == nil {
		v.res.addError(IssueNoManifest)
		return nil
	}

	if !v.loadManifest(manifestEntry) || v.gate("manifest") {
		return nil
	}

	signers := v.identifySigners(sigFiles, sigBlocks)
	if len(signers) == 0 {
		v.res.addError(IssueNoSignatures)
		return nil
	}

	// Any signer failing here fails the whole APK, like on Android.
	for _, s := range signers {
		v.verifySigBlock(s)
		if s.info.ContainsErrors() {
			v.res.Signers = append(v.res.Signers, s.info)
		}
	}
	if v.gate("signature blocks") {
		return nil
	}

	remaining := make([]*signer, 0, len(signers))
	for _, s := range signers {
		v.verifySigFile(s)
		switch {
		case s.ignored:
			v.res.IgnoredSigners = append(v.res.IgnoredSigners, s.info)
		case s.info.ContainsErrors():
			v.res.Signers = append(v.res.Signers, s.info)
		default:
			remaining = append(remaining, s)
		}
	}
	if v.gate("signature files") {
		return nil
	}
	if len(remaining) == 0 {
		v.res.addError(IssueNoSignatures)
		return nil
	}

	accepted := v.verifyEntries(remaining)
	if v.gate("entries") {
		return nil
	}

	v.reportUnprotectedEntries(accepted)

	acceptedSet := make(map[*signer]bool, len(accepted))
	for _, s := range accepted {
		acceptedSet[s] = true
	}
	for _, s := range remaining {
		if acceptedSet[s] {
			v.res.Signers = append(v.res.Signers, s.info)
		} else {
			v.res.IgnoredSigners = append(v.res.IgnoredSigners, s.info)
		}
	}

	v.res.Verified = true
	return nil
}

// findSignatureEntries picks the manifest, the signature files and the
// signature blocks out of META-INF/, in central directory order.
func (v *verifier) findSignatureEntries() (manifestEntry *Entry, sigFiles map[string]*Entry, sigBlocks []*Entry) {
	sigFiles = make(map[string]*Entry)
	for _, e := range v.catalog.files {
		if !strings.HasPrefix(e.Name, metaInfPrefix) {
			continue
		}

		switch {
		case manifestEntry == nil && e.Name == manifestName:
			manifestEntry = e
		case strings.HasSuffix(e.Name, ".SF"):
			sigFiles[e.Name] = e
		case strings.HasSuffix(e.Name, ".RSA"), strings.HasSuffix(e.Name, ".DSA"), strings.HasSuffix(e.Name, ".EC"):
			sigBlocks = append(sigBlocks, e)
		}
	}
	return
}

// loadManifest parses the manifest and checks that every section is named,
// unique and refers to an existing entry.
func (v *verifier) loadManifest(manifestEntry *Entry) bool {
	data, err := readEntry(v.apk, manifestEntry, v.sections.CentralDirectoryOffset)
	if err != nil {
		v.res.addError(IssueMalformedZipEntry, manifestEntry.Name, err)
		return false
	}

	v.manifest = parseManifest(data)
	v.manifestSections = make(map[string]*section, len(v.manifest.sections))
	for i, s := range v.manifest.sections {
		name, ok := s.Name()
		if !ok {
			v.res.addError(IssueUnnamedManifestSection, i+1)
			continue
		}
		if _, prs := v.manifestSections[name]; prs {
			v.res.addError(IssueDuplicateManifestSection, name)
			continue
		}
		v.manifestSections[name] = s

		if !v.catalog.containsFile(name) {
			v.res.addError(IssueMissingZipEntryReferencedInManifest, name)
		}
	}
	return true
}

func (v *verifier) identifySigners(sigFiles map[string]*Entry, sigBlocks []*Entry) []*signer {
	signers := make([]*signer, 0, len(sigBlocks))
	for _, block := range sigBlocks {
		base := block.Name[:strings.LastIndexByte(block.Name, '.')]
		name := strings.TrimPrefix(base, metaInfPrefix)
		sigFileName := base + ".SF"

		sigFile, prs := sigFiles[sigFileName]
		if !prs {
			v.res.addWarning(IssueMissingFile, block.Name, sigFileName)
			v.res.IgnoredSigners = append(v.res.IgnoredSigners, &SignerInfo{
				Name:                   name,
				SignatureBlockFileName: block.Name,
			})
			continue
		}

		signers = append(signers, &signer{
			name:          name,
			sigFileEntry:  sigFile,
			sigBlockEntry: block,
			info: &SignerInfo{
				Name:                   name,
				SignatureFileName:      sigFile.Name,
				SignatureBlockFileName: block.Name,
			},
		})
	}
	return signers
}

// VerifyFile verifies the JAR signatures of the file at path. Block-based
// signature schemes present in the file are detected and used for the
// stripping protection check. ErrMixedDexApkFile is returned together with
// the result if the file is also a valid DEX file.
func VerifyFile(path string, minSdkVersion, maxSdkVersion int32, opts ...Option) (*Result, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	fi, err := f.Stat()
	if err != nil {
		return nil, err
	}

	apk := signingblock.NewReaderAtDataSource(f, fi.Size())
	sections, err := signingblock.FindZipSections(apk)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	o := options{log: slog.New(slog.NewTextHandler(io.Discard, nil))}
	for _, opt := range opts {
		opt(&o)
	}

	found, err := signingblock.FindSchemeBlocks(apk, sections)
	if err != nil {
		if !signingblock.IsSigningBlockNotFoundError(err) {
			o.log.Warn("malformed APK Signing Block", slog.String("path", path), slog.Any("error", err))
		}
		found = map[int]bool{}
	}

	res, err := Verify(apk, sections, signingblock.SchemeNames, found, minSdkVersion, maxSdkVersion, opts...)
	if err != nil {
		return nil, err
	}

	if res.Verified {
		if magic, err := signingblock.ReadAt(apk, 0, 4); err == nil && binary.LittleEndian.Uint32(magic) == dexHeaderMagic {
			return res, ErrMixedDexApkFile
		}
	}
	return res, nil
}
