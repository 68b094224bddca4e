package pkcs7

import (
	"bytes"
	"errors"
)

// Some signing tools emit indefinite-length encodings, which encoding/asn1
// refuses. berToDer rewrites them with definite lengths.

const maxBerDepth = 64

var errBerTruncated = errors.New("ber: data truncated")

func berToDer(ber []byte) ([]byte, error) {
	var out bytes.Buffer
	rest, err := berObject(&out, ber, 0)
	if err != nil {
		return nil, err
	}
	if len(rest) != 0 {
		return nil, errors.New("ber: trailing data")
	}
	return out.Bytes(), nil
}

// berObject re-encodes the first object of data into out and returns the
// bytes that follow it.
func berObject(out *bytes.Buffer, data []byte, depth int) ([]byte, error) {
	if depth > maxBerDepth {
		return nil, errors.New("ber: nesting too deep")
	}
	if len(data) < 2 {
		return nil, errBerTruncated
	}

	tagLen, err := berTagLen(data)
	if err != nil {
		return nil, err
	}
	tag := data[:tagLen]
	constructed := data[0]&0x20 != 0
	data = data[tagLen:]
	if len(data) == 0 {
		return nil, errBerTruncated
	}

	if data[0] == 0x80 {
		if !constructed {
			return nil, errors.New("ber: indefinite length on primitive type")
		}
		data = data[1:]
		var content bytes.Buffer
		for {
			if len(data) < 2 {
				return nil, errBerTruncated
			}
			if data[0] == 0 && data[1] == 0 {
				data = data[2:]
				break
			}
			var err error
			if data, err = berObject(&content, data, depth+1); err != nil {
				return nil, err
			}
		}
		out.Write(tag)
		writeDerLength(out, content.Len())
		out.Write(content.Bytes())
		return data, nil
	}

	length, lenLen, err := berLength(data)
	if err != nil {
		return nil, err
	}
	data = data[lenLen:]
	if length > len(data) {
		return nil, errBerTruncated
	}
	body, rest := data[:length], data[length:]

	out.Write(tag)
	if !constructed {
		writeDerLength(out, len(body))
		out.Write(body)
		return rest, nil
	}

	var content bytes.Buffer
	for len(body) != 0 {
		if body, err = berObject(&content, body, depth+1); err != nil {
			return nil, err
		}
	}
	writeDerLength(out, content.Len())
	out.Write(content.Bytes())
	return rest, nil
}

func berTagLen(data []byte) (int, error) {
	tagLen := 1
	if data[0]&0x1f == 0x1f {
		for {
			if tagLen >= len(data) {
				return 0, errBerTruncated
			}
			b := data[tagLen]
			tagLen++
			if b&0x80 == 0 {
				break
			}
		}
	}
	return tagLen, nil
}

// berElement splits the first object of data into its original encoding
// and its contents without the header and end-of-contents octets.
func berElement(data []byte) (full, contents, rest []byte, err error) {
	var discard bytes.Buffer
	if rest, err = berObject(&discard, data, 0); err != nil {
		return nil, nil, nil, err
	}
	full = data[:len(data)-len(rest)]

	tagLen, err := berTagLen(full)
	if err != nil {
		return nil, nil, nil, err
	}
	if full[tagLen] == 0x80 {
		return full, full[tagLen+1 : len(full)-2], rest, nil
	}
	_, lenLen, err := berLength(full[tagLen:])
	if err != nil {
		return nil, nil, nil, err
	}
	return full, full[tagLen+lenLen:], rest, nil
}

// berChildren returns the original encodings of the objects inside the
// constructed object at the start of data.
func berChildren(data []byte) ([][]byte, error) {
	_, contents, _, err := berElement(data)
	if err != nil {
		return nil, err
	}

	var res [][]byte
	for len(contents) != 0 {
		var child []byte
		if child, _, contents, err = berElement(contents); err != nil {
			return nil, err
		}
		res = append(res, child)
	}
	return res, nil
}

// berSignedAttrs walks a BER ContentInfo down to its SignerInfos and returns
// the original encoding of each signer's signed attributes, nil for signers
// without them.
func berSignedAttrs(ber []byte) ([][]byte, error) {
	contentInfo, err := berChildren(ber)
	if err != nil {
		return nil, err
	} else if len(contentInfo) != 2 {
		return nil, errors.New("ber: unexpected ContentInfo layout")
	}

	explicit, err := berChildren(contentInfo[1])
	if err != nil {
		return nil, err
	} else if len(explicit) != 1 {
		return nil, errors.New("ber: unexpected ContentInfo content")
	}

	signedData, err := berChildren(explicit[0])
	if err != nil {
		return nil, err
	} else if len(signedData) < 4 {
		return nil, errors.New("ber: unexpected SignedData layout")
	}

	signerInfos, err := berChildren(signedData[len(signedData)-1])
	if err != nil {
		return nil, err
	}

	res := make([][]byte, len(signerInfos))
	for i, si := range signerInfos {
		fields, err := berChildren(si)
		if err != nil {
			return nil, err
		}
		if len(fields) > 3 && fields[3][0] == 0xa0 {
			res[i] = fields[3]
		}
	}
	return res, nil
}

func berLength(data []byte) (length int, consumed int, err error) {
	first := data[0]
	if first&0x80 == 0 {
		return int(first), 1, nil
	}
	n := int(first & 0x7f)
	if n == 0 || n > 4 || n+1 > len(data) {
		return 0, 0, errors.New("ber: invalid length")
	}
	for i := 1; i <= n; i++ {
		length = length<<8 | int(data[i])
	}
	if length < 0 {
		return 0, 0, errors.New("ber: invalid length")
	}
	return length, n + 1, nil
}

func writeDerLength(out *bytes.Buffer, length int) {
	if length < 0x80 {
		out.WriteByte(byte(length))
		return
	}
	var buf [4]byte
	n := 0
	for l := length; l > 0; l >>= 8 {
		n++
	}
	for i := 0; i < n; i++ {
		buf[i] = byte(length >> (8 * (n - 1 - i)))
	}
	out.WriteByte(0x80 | byte(n))
	out.Write(buf[:n])
}
