// devclient is an interactive helper for poking a running web3dpd during
// development: submit a model, trigger slicing and printing, watch status.
package main

import (
	"bufio"
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
)

func usage() {
	fmt.Println(`
submit <file.stl> <material> <quantity>: submit a model
list: list jobs
status <id>: job status snapshot
details <id>: full job details
slice <id>: trigger slicing
print <id>: trigger printing
q: quit`)
}

type client struct {
	base  string
	token string
	http  *http.Client
}

func (c *client) do(req *http.Request) {
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		fmt.Println("error:", err)
		return
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	var pretty bytes.Buffer
	if err := json.Indent(&pretty, body, "", "  "); err != nil {
		fmt.Println(string(body))
		return
	}
	fmt.Println(pretty.String())
}

func (c *client) get(path string) {
	req, err := http.NewRequest(http.MethodGet, c.base+path, nil)
	if err != nil {
		fmt.Println("error:", err)
		return
	}
	c.do(req)
}

func (c *client) post(path string, body io.Reader, contentType string) {
	req, err := http.NewRequest(http.MethodPost, c.base+path, body)
	if err != nil {
		fmt.Println("error:", err)
		return
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	c.do(req)
}

func (c *client) submit(path, material, quantity string) {
	f, err := os.Open(path)
	if err != nil {
		fmt.Println("error:", err)
		return
	}
	defer f.Close()

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", filepath.Base(path))
	if err != nil {
		fmt.Println("error:", err)
		return
	}
	if _, err := io.Copy(part, f); err != nil {
		fmt.Println("error:", err)
		return
	}
	mw.WriteField("material", material)
	mw.WriteField("quantity", quantity)
	if err := mw.Close(); err != nil {
		fmt.Println("error:", err)
		return
	}
	c.post("/api/jobs", &buf, mw.FormDataContentType())
}

func main() {
	var base, token string
	flag.StringVar(&base, "uri", "http://localhost:8888", "web3dpd address")
	flag.StringVar(&token, "token", "", "Bearer token for admin calls")
	flag.Parse()

	c := &client{base: base, token: token, http: &http.Client{}}
	usage()

	scanner := bufio.NewScanner(os.Stdin)
	fmt.Print("> ")
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) == 0 {
			fmt.Print("> ")
			continue
		}
		switch fields[0] {
		case "submit":
			if len(fields) != 4 {
				usage()
				break
			}
			c.submit(fields[1], fields[2], fields[3])
		case "list":
			c.get("/api/jobs")
		case "status":
			if len(fields) != 2 {
				usage()
				break
			}
			c.get("/api/jobs/" + fields[1])
		case "details":
			if len(fields) != 2 {
				usage()
				break
			}
			c.get("/api/jobs/" + fields[1] + "/details")
		case "slice":
			if len(fields) != 2 {
				usage()
				break
			}
			c.post("/api/jobs/"+fields[1]+"/slice", nil, "")
		case "print":
			if len(fields) != 2 {
				usage()
				break
			}
			c.post("/api/jobs/"+fields[1]+"/print", nil, "")
		case "q", "quit", "exit":
			return
		default:
			usage()
		}
		fmt.Print("> ")
	}
}
