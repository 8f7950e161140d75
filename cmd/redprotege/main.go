package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/redprotege/api/internal/auth"
	"github.com/redprotege/api/internal/catalogos"
	"github.com/redprotege/api/internal/db"
	"github.com/redprotege/api/internal/repo"
	"github.com/redprotege/api/internal/usuarios"
)

func main() {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339})

	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	_ = godotenv.Load()

	ctx := context.Background()

	dsn := strings.TrimSpace(os.Getenv("DB_DSN"))
	if dsn == "" {
		dsn = strings.TrimSpace(os.Getenv("DATABASE_URL"))
	}
	if dsn == "" {
		log.Fatal().Msg("defina DB_DSN o DATABASE_URL")
	}

	pool, err := db.NewPool(ctx, dsn)
	if err != nil {
		log.Fatal().Err(err).Msg("no fue posible conectar a la base")
	}
	defer pool.Close()

	cmd := os.Args[1]
	args := os.Args[2:]

	switch cmd {
	case "crear-admin":
		if err := runCrearAdmin(ctx, usuarios.NewRepository(pool), args); err != nil {
			log.Fatal().Err(err).Msg("no se pudo crear el administrador")
		}
	case "ciclos":
		if err := runCiclos(ctx, catalogos.NewRepository(pool), args); err != nil {
			log.Fatal().Err(err).Msg("falla en ciclos")
		}
	default:
		usage()
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "redprotege CLI")
	fmt.Fprintln(os.Stderr, "uso:")
	fmt.Fprintln(os.Stderr, "  redprotege crear-admin --email admin@salud.cl --nombre \"Ana Pérez\" --clave 'ClaveSegura1'")
	fmt.Fprintln(os.Stderr, "  redprotege ciclos agregar --nombre Infantil --rango \"0 a 9 años\"")
	fmt.Fprintln(os.Stderr, "  redprotege ciclos listar")
}

type creadorUsuarios interface {
	Crear(ctx context.Context, n usuarios.NuevoUsuario) (repo.Usuario, error)
}

func runCrearAdmin(ctx context.Context, r creadorUsuarios, args []string) error {
	fs := flag.NewFlagSet("crear-admin", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	var (
		email  = fs.String("email", "", "email de acceso")
		nombre = fs.String("nombre", "", "nombre completo")
		clave  = fs.String("clave", "", "clave inicial (se exige cambio al ingresar)")
	)
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *email == "" || *nombre == "" || len(*clave) < 8 {
		return errors.New("email, nombre y una clave de al menos 8 caracteres son obligatorios")
	}

	hash, err := auth.Hash(*clave)
	if err != nil {
		return err
	}
	u, err := r.Crear(ctx, usuarios.NuevoUsuario{
		NombreCompleto:       *nombre,
		Email:                *email,
		ClaveHash:            hash,
		Rol:                  repo.RolAdmin,
		Ambito:               repo.AmbitoGlobal(),
		CambioClaveRequerido: true,
	})
	if errors.Is(err, repo.ErrConflicto) {
		return fmt.Errorf("ya existe un usuario con email %s", *email)
	}
	if err != nil {
		return err
	}

	output, _ := json.MarshalIndent(u, "", "  ")
	fmt.Println(string(output))
	return nil
}

func runCiclos(ctx context.Context, r *catalogos.Repository, args []string) error {
	if len(args) == 0 {
		return errors.New("subcomando requerido: agregar | listar")
	}

	switch args[0] {
	case "agregar":
		fs := flag.NewFlagSet("ciclos agregar", flag.ContinueOnError)
		fs.SetOutput(os.Stderr)
		nombre := fs.String("nombre", "", "nombre del ciclo vital")
		rango := fs.String("rango", "", "descripción del rango etario")
		if err := fs.Parse(args[1:]); err != nil {
			return err
		}
		if strings.TrimSpace(*nombre) == "" {
			return errors.New("nombre es obligatorio")
		}
		c, err := r.InsertarCiclo(ctx, strings.TrimSpace(*nombre), strings.TrimSpace(*rango))
		if err != nil {
			return err
		}
		invalidarCache(ctx)
		output, _ := json.MarshalIndent(c, "", "  ")
		fmt.Println(string(output))
		return nil
	case "listar":
		cat, err := r.Cargar(ctx)
		if err != nil {
			return err
		}
		if len(cat.Ciclos) == 0 {
			fmt.Println("no hay ciclos registrados")
			return nil
		}
		encoded, _ := json.MarshalIndent(cat.Ciclos, "", "  ")
		fmt.Println(string(encoded))
		return nil
	}
	return fmt.Errorf("subcomando desconocido: %s", args[0])
}

// invalidarCache descarta el catálogo cacheado por la API, si hay Redis configurado.
func invalidarCache(ctx context.Context) {
	url := strings.TrimSpace(os.Getenv("REDIS_URL"))
	if url == "" {
		return
	}
	opts, err := redis.ParseURL(url)
	if err != nil {
		log.Warn().Err(err).Msg("REDIS_URL inválido; el catálogo se actualizará al expirar el cache")
		return
	}
	client := redis.NewClient(opts)
	defer client.Close()

	if err := catalogos.NewService(nil, client, 0).Invalidar(ctx); err != nil {
		log.Warn().Err(err).Msg("no se pudo invalidar el cache de catálogos")
	}
}
