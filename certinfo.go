package jarverifier

import (
	"bytes"
	"crypto/md5"
	"crypto/sha1"
	"crypto/sha256"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
	"time"
)

// CertInfo summarizes a signing certificate.
type CertInfo struct {
	Md5                string    `json:"md5" yaml:"md5"`
	Sha1               string    `json:"sha1" yaml:"sha1"`
	Sha256             string    `json:"sha256" yaml:"sha256"`
	ValidFrom, ValidTo time.Time `json:"-" yaml:"-"`
	Issuer             string    `json:"issuer" yaml:"issuer"`
	Subject            string    `json:"subject" yaml:"subject"`
}

type byPreference struct {
	chains [][]*x509.Certificate
	now    time.Time
}

func (c byPreference) Len() int      { return len(c.chains) }
func (c byPreference) Swap(i, j int) { c.chains[i], c.chains[j] = c.chains[j], c.chains[i] }
func (c byPreference) Less(i, j int) bool {
	ci, cj := c.chains[i][0], c.chains[j][0]

	if ci.SignatureAlgorithm != cj.SignatureAlgorithm {
		return ci.SignatureAlgorithm > cj.SignatureAlgorithm
	}

	// valid certificates go before expired ones
	if vi, vj := c.isValid(ci), c.isValid(cj); vi != vj {
		return vi
	}

	if !ci.NotBefore.Equal(cj.NotBefore) {
		return ci.NotBefore.After(cj.NotBefore)
	}
	return ci.NotAfter.Sub(ci.NotBefore) > cj.NotAfter.Sub(cj.NotBefore)
}

func (c byPreference) isValid(cert *x509.Certificate) bool {
	return !c.now.Before(cert.NotBefore) && !c.now.After(cert.NotAfter)
}

// PickBestCert returns the signing certificate to present for a set of
// chains: strongest signature algorithm first, then currently valid, then
// the most recent.
func PickBestCert(chains [][]*x509.Certificate) (*CertInfo, *x509.Certificate) {
	var usable [][]*x509.Certificate
	for _, c := range chains {
		if len(c) != 0 {
			usable = append(usable, c)
		}
	}
	if len(usable) == 0 {
		return nil, nil
	}

	sort.Stable(byPreference{chains: usable, now: time.Now()})

	var res CertInfo
	res.Fill(usable[0][0])
	return &res, usable[0][0]
}

// BestCert picks the best certificate of the accepted signers.
func (r *Result) BestCert() (*CertInfo, *x509.Certificate) {
	return PickBestCert(r.CertChains())
}

func (ci *CertInfo) Fill(cert *x509.Certificate) {
	md5sum := md5.Sum(cert.Raw)
	sha1sum := sha1.Sum(cert.Raw)
	sha256sum := sha256.Sum256(cert.Raw)

	ci.Md5 = hex.EncodeToString(md5sum[:])
	ci.Sha1 = hex.EncodeToString(sha1sum[:])
	ci.Sha256 = hex.EncodeToString(sha256sum[:])
	ci.ValidFrom = cert.NotBefore
	ci.ValidTo = cert.NotAfter
	ci.Issuer = pkixNameToString(&cert.Issuer)
	ci.Subject = pkixNameToString(&cert.Subject)
}

func (ci *CertInfo) String() string {
	return fmt.Sprintf("subject: %s\nissuer: %s\nvalid: %s - %s\nsha256: %s",
		ci.Subject, ci.Issuer, ci.ValidFrom.Format(time.RFC3339), ci.ValidTo.Format(time.RFC3339), ci.Sha256)
}

func pkixNameToString(n *pkix.Name) string {
	var buf bytes.Buffer

	if len(n.Country) != 0 {
		fmt.Fprintf(&buf, "C=%s, ", strings.Join(n.Country, ";"))
	}
	if len(n.Province) != 0 {
		fmt.Fprintf(&buf, "ST=%s, ", strings.Join(n.Province, ";"))
	}
	if len(n.Locality) != 0 {
		fmt.Fprintf(&buf, "L=%s, ", strings.Join(n.Locality, ";"))
	}
	if len(n.Organization) != 0 {
		fmt.Fprintf(&buf, "O=%s, ", strings.Join(n.Organization, ";"))
	}
	if len(n.OrganizationalUnit) != 0 {
		fmt.Fprintf(&buf, "OU=%s, ", strings.Join(n.OrganizationalUnit, ";"))
	}
	if len(n.CommonName) != 0 {
		fmt.Fprintf(&buf, "CN=%s, ", n.CommonName)
	}

	// Remove last ', '
	if buf.Len() != 0 {
		buf.Truncate(buf.Len() - 2)
	}

	return buf.String()
}
