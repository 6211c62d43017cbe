package socks5

import (
	"encoding/binary"
	"fmt"
	"io"
	"net"
)

// ReadMethodRequest reads and parses "VER(1) NMETHODS(1) METHODS[NMETHODS]"
// (RFC 1928 §3). It returns ErrUnsupportedVersion if VER != 0x05.
func ReadMethodRequest(r io.Reader) (MethodRequest, error) {
	hdr := make([]byte, 2)
	if _, err := io.ReadFull(r, hdr); err != nil {
		return MethodRequest{}, fmt.Errorf("read method header: %w", err)
	}
	if hdr[0] != Version {
		return MethodRequest{}, ErrUnsupportedVersion
	}
	nmethods := int(hdr[1])
	methods := make([]byte, nmethods)
	if nmethods > 0 {
		if _, err := io.ReadFull(r, methods); err != nil {
			return MethodRequest{}, fmt.Errorf("read methods: %w", err)
		}
	}
	return MethodRequest{Methods: methods}, nil
}

// ReadUserPassRequest reads and parses "VER(1) ULEN(1) UNAME PLEN(1) PASSWD"
// (RFC 1929 §1). It returns ErrUnsupportedAuthVersion if VER != 0x01.
func ReadUserPassRequest(r io.Reader) (UserPassRequest, error) {
	ver := make([]byte, 1)
	if _, err := io.ReadFull(r, ver); err != nil {
		return UserPassRequest{}, fmt.Errorf("read auth version: %w", err)
	}
	if ver[0] != AuthVersion {
		return UserPassRequest{}, ErrUnsupportedAuthVersion
	}

	uname, err := readLengthPrefixed(r)
	if err != nil {
		return UserPassRequest{}, fmt.Errorf("read username: %w", err)
	}
	passwd, err := readLengthPrefixed(r)
	if err != nil {
		return UserPassRequest{}, fmt.Errorf("read password: %w", err)
	}
	return UserPassRequest{Username: string(uname), Password: string(passwd)}, nil
}

func readLengthPrefixed(r io.Reader) ([]byte, error) {
	lenBuf := make([]byte, 1)
	if _, err := io.ReadFull(r, lenBuf); err != nil {
		return nil, err
	}
	n := int(lenBuf[0])
	buf := make([]byte, n)
	if n > 0 {
		if _, err := io.ReadFull(r, buf); err != nil {
			return nil, err
		}
	}
	return buf, nil
}

// ReadRequest reads and parses "VER(1) CMD(1) RSV(1) ATYP(1)" followed by
// the ATYP-dependent address and a 2-byte big-endian port (RFC 1928 §4).
// It returns ErrUnsupportedVersion, ErrUnsupportedCommand, or
// ErrUnsupportedAddressType for the respective malformed/unsupported
// fields. The caller maps the last two to their REP codes (0x07, 0x08)
// before terminating the connection; a version mismatch ends the
// connection without a reply.
func ReadRequest(r io.Reader) (Request, error) {
	hdr := make([]byte, 4)
	if _, err := io.ReadFull(r, hdr); err != nil {
		return Request{}, fmt.Errorf("read request header: %w", err)
	}
	if hdr[0] != Version {
		return Request{}, ErrUnsupportedVersion
	}
	cmd := hdr[1]
	atyp := hdr[3]

	// CMD is checked before the address is parsed: an unsupported command
	// must report ErrUnsupportedCommand (REP 0x07) even when it also
	// carries an ATYP this codec doesn't understand.
	if cmd != CmdConnect {
		return Request{Command: cmd}, ErrUnsupportedCommand
	}

	host, err := readAddress(r, atyp)
	if err != nil {
		return Request{}, err
	}

	portBuf := make([]byte, 2)
	if _, err := io.ReadFull(r, portBuf); err != nil {
		return Request{}, fmt.Errorf("read port: %w", err)
	}
	port := binary.BigEndian.Uint16(portBuf)

	return Request{Command: cmd, Host: host, Port: port}, nil
}

func readAddress(r io.Reader, atyp byte) (string, error) {
	switch atyp {
	case ATYPIPv4:
		buf := make([]byte, 4)
		if _, err := io.ReadFull(r, buf); err != nil {
			return "", fmt.Errorf("read ipv4 address: %w", err)
		}
		return net.IP(buf).String(), nil
	case ATYPIPv6:
		buf := make([]byte, 16)
		if _, err := io.ReadFull(r, buf); err != nil {
			return "", fmt.Errorf("read ipv6 address: %w", err)
		}
		return net.IP(buf).String(), nil
	case ATYPDomain:
		domain, err := readLengthPrefixed(r)
		if err != nil {
			return "", fmt.Errorf("read domain address: %w", err)
		}
		return string(domain), nil
	default:
		return "", ErrUnsupportedAddressType
	}
}
