package main

import (
	"fmt"
	"net"
	"os"
	"strconv"
	"time"

	"correio-ftp/internal/core/logger"
	"correio-ftp/internal/features/client/adapters"
	"correio-ftp/internal/features/client/service"

	"github.com/spf13/pflag"
)

const usage = `usage: client [flags] <command>

commands:
  upload <path>          send a file and print its tracking id
  download <id> <dest>   retrieve a shipment into dest
  list                   list every shipment
  status <id>            show the status of a shipment

flags:
`

func main() {
	flags := pflag.NewFlagSet("client", pflag.ExitOnError)
	host := flags.String("host", "127.0.0.1", "server host")
	port := flags.Int("port", 2121, "server control port")
	logLevel := flags.String("log-level", "info", "log level (debug shows protocol lines)")
	listOnConnect := flags.Bool("list-on-connect", false, "print the shipment list right after connecting")
	timeout := flags.Duration("timeout", 30*time.Second, "timeout for dialing and each server reply")
	flags.Usage = func() {
		fmt.Fprint(os.Stderr, usage)
		flags.PrintDefaults()
	}
	_ = flags.Parse(os.Args[1:])

	if err := logger.Init("development", *logLevel); err != nil {
		fmt.Fprintf(os.Stderr, "failed to init logger: %v\n", err)
		os.Exit(1)
	}
	args := flags.Args()
	if len(args) == 0 {
		flags.Usage()
		os.Exit(2)
	}

	driver := service.NewDriver(adapters.NewLogSink(logger.Named("client")), service.Options{
		DialTimeout:   *timeout,
		ReplyTimeout:  *timeout,
		ListOnConnect: *listOnConnect,
	})
	code := run(driver, net.JoinHostPort(*host, strconv.Itoa(*port)), args, flags.Usage)
	driver.Close()
	logger.Sync()
	os.Exit(code)
}

func run(d *service.Driver, addr string, args []string, usageFn func()) int {
	var op func() <-chan service.Result
	switch {
	case args[0] == "upload" && len(args) == 2:
		op = func() <-chan service.Result { return d.Upload(args[1]) }
	case args[0] == "download" && len(args) == 3:
		op = func() <-chan service.Result { return d.Download(args[1], args[2]) }
	case args[0] == "list" && len(args) == 1:
		op = d.List
	case args[0] == "status" && len(args) == 2:
		op = func() <-chan service.Result { return d.Status(args[1]) }
	default:
		usageFn()
		return 2
	}

	connected := <-d.Connect(addr)
	if connected.Err != nil {
		return 1
	}
	printListings(connected)

	res := <-op()
	if res.Err != nil {
		return 1
	}

	switch args[0] {
	case "upload":
		fmt.Println(res.ID)
	case "download":
		fmt.Printf("%s (%d bytes)\n", args[2], res.Bytes)
	case "list":
		printListings(res)
	case "status":
		for _, line := range res.Lines {
			fmt.Println(line)
		}
	}

	<-d.Disconnect()
	return 0
}

func printListings(res service.Result) {
	for _, l := range res.Listings {
		fmt.Println(l.String())
	}
}
