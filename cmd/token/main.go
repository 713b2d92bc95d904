// token emite un JWT para operar la API del almacén (no hay pantalla de login).
//
// Uso: go run ./cmd/token -user F001 -name "Maria Souza" -role operador
// Lee JWT_SECRET, JWT_ISSUER y JWT_EXPIRATION_MINUTES de la misma configuración que la API.
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/jhoicas/almacen-sync/pkg/config"
	"github.com/jhoicas/almacen-sync/pkg/jwt"
)

func main() {
	userID := flag.String("user", "", "id del usuario (matrícula)")
	name := flag.String("name", "", "nombre que queda como responsable de los movimientos")
	role := flag.String("role", jwt.RoleOperator, "admin | operador")
	minutes := flag.Int("minutes", 0, "vigencia en minutos (0 = JWT_EXPIRATION_MINUTES)")
	flag.Parse()

	if *userID == "" {
		fmt.Fprintln(os.Stderr, "falta -user")
		os.Exit(2)
	}
	if *role != jwt.RoleAdmin && *role != jwt.RoleOperator {
		fmt.Fprintf(os.Stderr, "rol desconocido %q\n", *role)
		os.Exit(2)
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Cargar configuración: %v\n", err)
		os.Exit(1)
	}
	exp := cfg.JWT.Expiration
	if *minutes > 0 {
		exp = *minutes
	}
	if *name == "" {
		*name = *userID
	}

	tok, err := jwt.Generate(cfg.JWT.Secret, *userID, *name, *role, cfg.JWT.Issuer, exp)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Generar token: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(tok)
}
