package main

import (
	"log"
	"os"

	"github.com/jmoiron/sqlx"

	"github.com/uniroute/uniroute/core"
	"github.com/uniroute/uniroute/core/university"
	"github.com/uniroute/uniroute/storage/database"
	sqlxrepos "github.com/uniroute/uniroute/storage/database/sqlx"
)

var logger *log.Logger

func main() {
	defer os.Exit(0)

	logger = log.New(os.Stdout, "ADMIN : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile)

	// set up DB
	errAndDie(database.CreateIfNotExist(core.Conf))
	db, err := database.Open(core.Conf)
	errAndDie(err)
	defer db.Close()
	errAndDie(db.Ping())
	sdb := sqlx.NewDb(db, core.Conf.Database.Engine)

	// start CLI
	cli := commandLine{
		db:      db,
		usrRepo: sqlxrepos.NewUserRepository(sdb),
		uniSvc:  university.NewService(sqlxrepos.NewUniversityRepository(sdb)),
	}
	if err := cli.run(os.Args); err != nil {
		if err != errHelp {
			logger.Printf("\nerror: %s\n", err)
		}
		os.Exit(1)
	}
}

func errAndDie(err error) {
	if err != nil {
		logger.Fatal(err)
	}
}
