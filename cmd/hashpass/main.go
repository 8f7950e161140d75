// hashpass imprime el hash argon2id de una clave, para cargar usuarios a mano.
// La clave se lee del argumento o, si no hay, de la primera línea de stdin.
package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/redprotege/api/internal/auth"
	"github.com/redprotege/api/internal/util"
)

func main() {
	clave, err := leerClave(os.Args[1:], os.Stdin)
	if err == nil {
		err = util.ValidarClave(clave)
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, "hashpass:", err)
		os.Exit(2)
	}

	hash, err := auth.Hash(clave)
	if err != nil {
		fmt.Fprintln(os.Stderr, "hashpass: no se pudo generar el hash:", err)
		os.Exit(1)
	}
	fmt.Println(hash)
}

func leerClave(args []string, stdin io.Reader) (string, error) {
	if len(args) > 0 {
		return args[0], nil
	}
	linea, err := bufio.NewReader(stdin).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", err
	}
	if clave := strings.TrimRight(linea, "\r\n"); clave != "" {
		return clave, nil
	}
	return "", errors.New("uso: hashpass <clave>  (o la clave por stdin)")
}
