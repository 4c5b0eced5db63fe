package server

import (
	"os"

	"respkv/internal/processor"
	"respkv/internal/rdb"
)

// loadRDB loads the configured dump file into the keyspace before the
// listener accepts connections, if dir/dbfilename are set and the file
// exists. A missing file is not an error; any other failure retains
// whatever entries were already decoded.
func (s *Server) loadRDB() error {
	path, ok := s.config.RDBPath()
	if !ok {
		return nil
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}

	reader, err := rdb.NewReader(path)
	if err != nil {
		return err
	}
	if reader == nil {
		return nil
	}
	defer reader.Close()

	entries, err := reader.Load()
	for _, e := range entries {
		cmd := &processor.Command{
			Type:     processor.CmdLoadEntry,
			Key:      e.Key,
			Value:    e.Value,
			Expiry:   e.Expiry,
			Response: make(chan any, 1),
		}
		s.processor.Submit(cmd)
		<-cmd.Response
	}
	return err
}
