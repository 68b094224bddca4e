package jarverifier

import (
	"bytes"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/asn1"
	"fmt"
	"sort"
	"strings"
)

type byX501Canonical []pkix.AttributeTypeAndValue

func (a byX501Canonical) Len() int      { return len(a) }
func (a byX501Canonical) Swap(i, j int) { a[i], a[j] = a[j], a[i] }
func (a byX501Canonical) Less(i, j int) bool {
	ioid1 := a[i].Type
	ioid2 := a[j].Type
	min := len(ioid1)
	if len(ioid2) < min {
		min = len(ioid2)
	}
	for x := 0; x < min; x++ {
		if ioid1[x] != ioid2[x] {
			return ioid1[x] < ioid2[x]
		}
	}
	return len(ioid1) < len(ioid2)
}

// pkixCanonical renders a distinguished name in the X.500 canonical form
// used to compare issuers and subjects: RDNs in reverse order, attributes
// of a multi-valued RDN sorted by OID, values lowercased with whitespace
// collapsed and special characters escaped.
func pkixCanonical(n pkix.RDNSequence) string {
	var res bytes.Buffer
	for i := len(n) - 1; i >= 0; i-- {
		atavList := make([]pkix.AttributeTypeAndValue, len(n[i]))
		copy(atavList, n[i])
		sort.Sort(byX501Canonical(atavList))

		for j, atav := range atavList {
			if j != 0 {
				res.WriteByte('+')
			}
			fmt.Fprintf(&res, "%s=", atav.Type.String())

			val, ok := atav.Value.(string)
			if !ok {
				fmt.Fprintf(&res, "%v", atav.Value)
				continue
			}
			writeCanonicalValue(&res, val)
		}

		if i != 0 {
			res.WriteByte(',')
		}
	}
	return strings.ToLower(res.String())
}

func writeCanonicalValue(res *bytes.Buffer, val string) {
	val = strings.TrimSpace(val)
	if val == "" {
		return
	}

	index := 0
	if val[0] == '#' {
		res.WriteString("\\#")
		index++
	}

	lastSpace := false
	for ; index < len(val); index++ {
		c := val[index]
		switch c {
		case ' ', '\t', '\n', '\r':
			if !lastSpace {
				res.WriteByte(' ')
			}
			lastSpace = true
			continue
		case '"', '\\', ',', '+', '<', '>', ';':
			res.WriteByte('\\')
		}
		res.WriteByte(c)
		lastSpace = false
	}
}

func certIssuerCanonical(cert *x509.Certificate) string {
	var seq pkix.RDNSequence
	if _, err := asn1.Unmarshal(cert.RawIssuer, &seq); err != nil {
		return pkixCanonical(cert.Issuer.ToRDNSequence())
	}
	return pkixCanonical(seq)
}

func certSubjectCanonical(cert *x509.Certificate) string {
	var seq pkix.RDNSequence
	if _, err := asn1.Unmarshal(cert.RawSubject, &seq); err != nil {
		return pkixCanonical(cert.Subject.ToRDNSequence())
	}
	return pkixCanonical(seq)
}
