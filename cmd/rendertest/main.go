package main

import (
	"bufio"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/crystal-mush/nightchat/pkg/channels"
	"github.com/crystal-mush/nightchat/pkg/chat"
	"github.com/crystal-mush/nightchat/pkg/chatdb"
	"github.com/crystal-mush/nightchat/pkg/policy"
	"github.com/crystal-mush/nightchat/pkg/render"
	"github.com/crystal-mush/nightchat/pkg/server"
)

func main() {
	dir := flag.String("channels", "channels", "Directory of channel files")
	chID := flag.String("channel", "global", "Channel id to render for")
	name := flag.String("player", "Steve", "Sender name")
	permsPath := flag.String("perms", "", "Permissions file for prefixes and tag nodes (optional)")
	spy := flag.Bool("spy", false, "Render the spy format instead of the normal one")
	expr := flag.String("e", "", "Message to render (non-interactive mode)")
	batch := flag.String("batch", "", "File with messages to render (one per line)")
	flag.Parse()

	chs, err := channels.LoadDir(*dir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading channels: %v\n", err)
		os.Exit(1)
	}
	reg := channels.NewRegistry()
	reg.Replace(chs)
	ch := reg.Resolve(*chID)
	if ch == nil {
		fmt.Fprintf(os.Stderr, "No channel %q in %s\n", *chID, *dir)
		os.Exit(1)
	}

	var perms policy.Permissions
	if *permsPath != "" {
		p, err := server.LoadPermissions(*permsPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error loading permissions: %v\n", err)
			os.Exit(1)
		}
		perms = p
	}
	pol := policy.New(perms, nil, policy.DefaultNodes())
	sender := chatdb.Player{ID: chatdb.PlayerIDFromName(*name), Name: *name, Elevated: perms == nil}
	r := render.New(pol)

	show := func(msg string) {
		format := ch.Format
		if *spy {
			format = ch.SpyFormat
			if strings.TrimSpace(format) == "" {
				format = "&dSPY " + ch.Format
			}
		}
		ph := map[string]string{
			"channel":    ch.DisplayName(),
			"channel_id": ch.ID,
			"prefix":     strings.TrimSpace(pol.Prefix(sender)),
			"suffix":     strings.TrimSpace(pol.Suffix(sender)),
			"nick":       sender.Name,
			"message":    chat.Transform(ch, msg),
		}
		out := r.Render(format, ph, ch, sender)
		fmt.Println(out.String())
		fmt.Println(render.ToANSI(out.PlainText()))
		for _, run := range out.Runs {
			if run.Interactive() {
				b, _ := json.Marshal(run)
				fmt.Printf("  %s\n", b)
			}
		}
	}

	if *expr != "" {
		show(*expr)
		return
	}

	if *batch != "" {
		f, err := os.Open(*batch)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error opening batch file: %v\n", err)
			os.Exit(1)
		}
		defer f.Close()
		scanner := bufio.NewScanner(f)
		for scanner.Scan() {
			line := scanner.Text()
			if line == "" || strings.HasPrefix(line, "#") {
				continue
			}
			show(line)
		}
		return
	}

	fmt.Printf("Rendering channel %s as %s. Ctrl+D to exit.\n\n", ch.ID, sender.Name)
	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print(ch.ID + "> ")
		if !scanner.Scan() {
			break
		}
		line := scanner.Text()
		if line == "quit" || line == "exit" {
			break
		}
		if line != "" {
			show(line)
		}
	}
}
