package repository

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pgvector/pgvector-go"

	"github.com/saturnino-fabrica-de-software/faceauth/internal/imaging"
)

const uniqueViolation = "23505"

// isUniqueViolation checks if the error is a unique constraint violation
func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == uniqueViolation
	}

	errMsg := strings.ToLower(err.Error())
	return strings.Contains(errMsg, uniqueViolation) ||
		strings.Contains(errMsg, "duplicate key")
}

func toPgVector(v []float64) pgvector.Vector {
	floats := make([]float32, len(v))
	for i, x := range v {
		floats[i] = float32(x)
	}
	return pgvector.NewVector(floats)
}

func fromPgVector(v *pgvector.Vector) []float64 {
	if v == nil || v.Slice() == nil {
		return nil
	}
	out := make([]float64, len(v.Slice()))
	for i, x := range v.Slice() {
		out[i] = float64(x)
	}
	return out
}

// encodePlane packs a normalized plane as little-endian float32 values.
func encodePlane(img imaging.NormalizedImage) []byte {
	pix := img.Pix()
	buf := make([]byte, 4*len(pix))
	for i, v := range pix {
		binary.LittleEndian.PutUint32(buf[4*i:], math.Float32bits(float32(v)))
	}
	return buf
}

func decodePlane(size int, data []byte) (imaging.NormalizedImage, error) {
	if len(data) != 4*size*size {
		return imaging.NormalizedImage{}, fmt.Errorf("sample payload is %d bytes, want %d", len(data), 4*size*size)
	}
	pix := make([]float64, size*size)
	for i := range pix {
		pix[i] = float64(math.Float32frombits(binary.LittleEndian.Uint32(data[4*i:])))
	}
	return imaging.NewNormalizedImage(size, pix)
}
