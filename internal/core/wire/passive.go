package wire

import (
	"errors"
	"fmt"
	"net"
	"regexp"
	"strconv"
)

// ErrMalformedPassive is returned when a 227 reply carries no usable address.
var ErrMalformedPassive = errors.New("malformed passive address")

var passivePattern = regexp.MustCompile(`\((\d{1,3}),(\d{1,3}),(\d{1,3}),(\d{1,3}),(\d{1,3}),(\d{1,3})\)`)

// EncodePassive renders ip and port as "h1,h2,h3,h4,p1,p2" with port = p1*256+p2.
func EncodePassive(ip net.IP, port int) (string, error) {
	v4 := ip.To4()
	if v4 == nil {
		return "", fmt.Errorf("%w: %s is not an IPv4 address", ErrMalformedPassive, ip)
	}
	if port <= 0 || port > 65535 {
		return "", fmt.Errorf("%w: port %d out of range", ErrMalformedPassive, port)
	}
	return fmt.Sprintf("%d,%d,%d,%d,%d,%d", v4[0], v4[1], v4[2], v4[3], port/256, port%256), nil
}

// PassiveLine is the full 227 reply text for ip and port.
func PassiveLine(ip net.IP, port int) (string, error) {
	encoded, err := EncodePassive(ip, port)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%d Entering Passive Mode (%s).", CodePassive, encoded), nil
}

// ParsePassive extracts the data channel address from a 227 reply line.
func ParsePassive(line string) (*net.TCPAddr, error) {
	m := passivePattern.FindStringSubmatch(line)
	if m == nil {
		return nil, fmt.Errorf("%w: %q", ErrMalformedPassive, line)
	}

	var n [6]int
	for i := range n {
		v, err := strconv.Atoi(m[i+1])
		if err != nil || v > 255 {
			return nil, fmt.Errorf("%w: %q", ErrMalformedPassive, line)
		}
		n[i] = v
	}

	port := n[4]*256 + n[5]
	if port == 0 {
		return nil, fmt.Errorf("%w: zero port in %q", ErrMalformedPassive, line)
	}

	return &net.TCPAddr{
		IP:   net.IPv4(byte(n[0]), byte(n[1]), byte(n[2]), byte(n[3])),
		Port: port,
	}, nil
}
