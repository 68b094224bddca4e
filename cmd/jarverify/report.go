package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/avast/jarverifier"
)

type signerReport struct {
	Name           string                  `json:"name" yaml:"name"`
	SignatureFile  string                  `json:"signatureFile,omitempty" yaml:"signatureFile,omitempty"`
	SignatureBlock string                  `json:"signatureBlock" yaml:"signatureBlock"`
	Certificates   []*jarverifier.CertInfo `json:"certificates,omitempty" yaml:"certificates,omitempty"`
	Errors         []string                `json:"errors,omitempty" yaml:"errors,omitempty"`
	Warnings       []string                `json:"warnings,omitempty" yaml:"warnings,omitempty"`
}

// report is the serialized outcome of verifying one file.
type report struct {
	Path           string                `json:"path" yaml:"path"`
	Verified       bool                  `json:"verified" yaml:"verified"`
	Failure        string                `json:"failure,omitempty" yaml:"failure,omitempty"`
	BestCert       *jarverifier.CertInfo `json:"bestCert,omitempty" yaml:"bestCert,omitempty"`
	Signers        []signerReport        `json:"signers,omitempty" yaml:"signers,omitempty"`
	IgnoredSigners []signerReport        `json:"ignoredSigners,omitempty" yaml:"ignoredSigners,omitempty"`
	Errors         []string              `json:"errors,omitempty" yaml:"errors,omitempty"`
	Warnings       []string              `json:"warnings,omitempty" yaml:"warnings,omitempty"`
}

func issueStrings(issues []*jarverifier.Issue) []string {
	if len(issues) == 0 {
		return nil
	}
	res := make([]string, 0, len(issues))
	for _, i := range issues {
		res = append(res, fmt.Sprintf("%s: %s", i.Kind, i.Error()))
	}
	return res
}

func newSignerReports(signers []*jarverifier.SignerInfo) []signerReport {
	res := make([]signerReport, 0, len(signers))
	for _, s := range signers {
		sr := signerReport{
			Name:           s.Name,
			SignatureFile:  s.SignatureFileName,
			SignatureBlock: s.SignatureBlockFileName,
			Errors:         issueStrings(s.Errors),
			Warnings:       issueStrings(s.Warnings),
		}
		for _, c := range s.CertChain {
			var info jarverifier.CertInfo
			info.Fill(c)
			sr.Certificates = append(sr.Certificates, &info)
		}
		res = append(res, sr)
	}
	return res
}

func newReport(path string, res *jarverifier.Result, err error) *report {
	r := &report{Path: path}
	if err != nil {
		r.Failure = err.Error()
	}
	if res == nil {
		return r
	}

	r.Verified = res.Verified && err == nil
	r.BestCert, _ = res.BestCert()
	r.Signers = newSignerReports(res.Signers)
	r.IgnoredSigners = newSignerReports(res.IgnoredSigners)
	r.Errors = issueStrings(res.Errors)
	r.Warnings = issueStrings(res.Warnings)
	return r
}

func writeReports(w io.Writer, format string, reports []*report) error {
	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(reports)
	case "yaml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(reports); err != nil {
			return err
		}
		return enc.Close()
	case "text":
		for _, r := range reports {
			writeText(w, r)
		}
		return nil
	default:
		return fmt.Errorf("unknown output format %q", format)
	}
}

func writeText(w io.Writer, r *report) {
	fmt.Fprintf(w, "%s\n", r.Path)
	if r.Verified {
		fmt.Fprintf(w, "  Verified: yes\n")
	} else {
		fmt.Fprintf(w, "  Verified: NO\n")
	}
	if r.Failure != "" {
		fmt.Fprintf(w, "  Failure: %s\n", r.Failure)
	}

	writeList(w, "  ", "Error", r.Errors)
	writeList(w, "  ", "Warning", r.Warnings)

	for _, s := range r.Signers {
		writeSignerText(w, "Signer", s)
	}
	for _, s := range r.IgnoredSigners {
		writeSignerText(w, "Ignored signer", s)
	}

	if r.BestCert != nil {
		fmt.Fprintf(w, "  Best certificate:\n    %s\n", strings.ReplaceAll(r.BestCert.String(), "\n", "\n    "))
	}
	fmt.Fprintln(w)
}

func writeSignerText(w io.Writer, title string, s signerReport) {
	fmt.Fprintf(w, "  %s %s (%s, %s)\n", title, s.Name, s.SignatureFile, s.SignatureBlock)
	for i, c := range s.Certificates {
		fmt.Fprintf(w, "    #%d subject: %s\n       sha256: %s\n", i+1, c.Subject, c.Sha256)
	}
	writeList(w, "    ", "Error", s.Errors)
	writeList(w, "    ", "Warning", s.Warnings)
}

func writeList(w io.Writer, indent, title string, items []string) {
	for _, i := range items {
		fmt.Fprintf(w, "%s%s: %s\n", indent, title, i)
	}
}
