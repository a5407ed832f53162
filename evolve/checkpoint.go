package evolve

import (
	"compress/gzip"
	"encoding/gob"
	"fmt"
	"os"

	"github.com/openfluke/evoloom/nn"
)

// checkpointData is the gob payload. Networks travel as their binary file
// encoding so a checkpoint is exactly as strict as a champion file.
type checkpointData struct {
	Generation int
	Roles      int
	Brains     [][][]byte // [individual][role]
}

// SaveCheckpoint writes a gzip-compressed population snapshot. nets holds
// one row per individual with the same number of networks (roles) in each.
func SaveCheckpoint(path string, generation int, nets [][]*nn.DenseNetwork) error {
	data := checkpointData{Generation: generation, Brains: make([][][]byte, len(nets))}
	for i, row := range nets {
		if i == 0 {
			data.Roles = len(row)
		} else if len(row) != data.Roles {
			return fmt.Errorf("individual %d has %d networks, want %d", i, len(row), data.Roles)
		}
		data.Brains[i] = make([][]byte, len(row))
		for r, net := range row {
			blob, err := net.MarshalBinary()
			if err != nil {
				return fmt.Errorf("encode individual %d network %d: %w", i, r, err)
			}
			data.Brains[i][r] = blob
		}
	}

	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create checkpoint file '%s': %w", path, err)
	}
	defer file.Close()

	gzWriter := gzip.NewWriter(file)
	if err := gob.NewEncoder(gzWriter).Encode(data); err != nil {
		gzWriter.Close()
		return fmt.Errorf("failed to encode population data: %w", err)
	}
	if err := gzWriter.Close(); err != nil {
		return fmt.Errorf("failed to flush checkpoint: %w", err)
	}
	return file.Close()
}

// LoadCheckpoint reads a snapshot written by SaveCheckpoint.
func LoadCheckpoint(path string) (int, [][]*nn.DenseNetwork, error) {
	file, err := os.Open(path)
	if err != nil {
		return 0, nil, fmt.Errorf("failed to open checkpoint file '%s': %w", path, err)
	}
	defer file.Close()

	gzReader, err := gzip.NewReader(file)
	if err != nil {
		return 0, nil, fmt.Errorf("failed to create gzip reader for checkpoint: %w", err)
	}
	defer gzReader.Close()

	var data checkpointData
	if err := gob.NewDecoder(gzReader).Decode(&data); err != nil {
		return 0, nil, fmt.Errorf("failed to decode population data from checkpoint: %w", err)
	}

	nets := make([][]*nn.DenseNetwork, len(data.Brains))
	for i, row := range data.Brains {
		if len(row) != data.Roles {
			return 0, nil, fmt.Errorf("checkpoint individual %d has %d networks, want %d", i, len(row), data.Roles)
		}
		nets[i] = make([]*nn.DenseNetwork, len(row))
		for r, blob := range row {
			net := &nn.DenseNetwork{}
			if err := net.UnmarshalBinary(blob); err != nil {
				return 0, nil, fmt.Errorf("checkpoint individual %d network %d: %w", i, r, err)
			}
			nets[i][r] = net
		}
	}
	return data.Generation, nets, nil
}
