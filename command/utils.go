package command

import (
	"fmt"
	"net"
	"strconv"
)

func parseServer(server string) (host string, port int, err error) {
	host, portR, err := net.SplitHostPort(server)
	if err != nil {
		return "", 0, fmt.Errorf("invalid server address: %v", err)
	}

	port, err = strconv.Atoi(portR)
	if err != nil {
		return "", 0, fmt.Errorf("invalid server port: %v", err)
	}

	return host, port, nil
}
