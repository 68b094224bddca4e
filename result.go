package jarverifier

import (
	"crypto/x509"

	"go.uber.org/multierr"
)

// Result of a JAR signature verification.
type Result struct {
	// Verified is true only if every stage passed for the whole API range.
	Verified bool

	Signers        []*SignerInfo
	IgnoredSigners []*SignerInfo

	Errors   []*Issue
	Warnings []*Issue
}

// SignerInfo describes one JAR signer, i.e. a pair of META-INF/<name>.SF
// and META-INF/<name>.(RSA|DSA|EC) files.
type SignerInfo struct {
	Name                   string
	SignatureFileName      string
	SignatureBlockFileName string

	// CertChain is ordered from the signing certificate to its root.
	CertChain []*x509.Certificate

	Errors   []*Issue
	Warnings []*Issue
}

func (r *Result) addWarning(kind IssueKind, params ...interface{}) {
	r.Warnings = append(r.Warnings, newIssue(kind, params...))
}

func (r *Result) addError(kind IssueKind, params ...interface{}) {
	r.Errors = append(r.Errors, newIssue(kind, params...))
}

// ContainsErrors reports global errors and errors of accepted signers.
// Ignored signers never make the result fail.
func (r *Result) ContainsErrors() bool {
	if len(r.Errors) != 0 {
		return true
	}
	for _, s := range r.Signers {
		if s.ContainsErrors() {
			return true
		}
	}
	return false
}

// Err combines every error of the result, including accepted signers'
// errors, into one value. Nil when ContainsErrors is false.
func (r *Result) Err() error {
	var err error
	for _, e := range r.Errors {
		err = multierr.Append(err, e)
	}
	for _, s := range r.Signers {
		for _, e := range s.Errors {
			err = multierr.Append(err, e)
		}
	}
	return err
}

// GetLastError returns the most recently recorded global error.
func (r *Result) GetLastError() error {
	if l := len(r.Errors); l != 0 {
		return r.Errors[l-1]
	}
	return nil
}

// CertChains returns the certificate chains of the accepted signers.
func (r *Result) CertChains() [][]*x509.Certificate {
	res := make([][]*x509.Certificate, 0, len(r.Signers))
	for _, s := range r.Signers {
		if len(s.CertChain) != 0 {
			res = append(res, s.CertChain)
		}
	}
	return res
}

func (s *SignerInfo) addWarning(kind IssueKind, params ...interface{}) {
	s.Warnings = append(s.Warnings, newIssue(kind, params...))
}

func (s *SignerInfo) addError(kind IssueKind, params ...interface{}) {
	s.Errors = append(s.Errors, newIssue(kind, params...))
}

func (s *SignerInfo) ContainsErrors() bool {
	return len(s.Errors) != 0
}
