package mtc

//utility functions for aws

import (
	"bytes"
	"compress/gzip"
	"context"
	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	"io/ioutil"
	"sync"
)

//check if any credentials are available in the environment
func HasAWSCredentials() bool {
	awsConfig, err := LoadAWSConfig()
	return err == nil && awsConfig.Credentials != nil && len(awsConfig.Region) > 0
}

var awsConfigMutex *sync.Mutex = &sync.Mutex{}
var loadedAWSConfig *aws.Config

func LoadAWSConfig() (*aws.Config, error) {
	awsConfigMutex.Lock()
	defer awsConfigMutex.Unlock()

	if loadedAWSConfig == nil {
		load, err := awsconfig.LoadDefaultConfig(context.TODO())
		if err != nil {
			loadedAWSConfig = nil
			return nil, err
		}

		loadedAWSConfig = &load
	}

	return loadedAWSConfig, nil
}

//get value from parameter store (aws systems manager)
func GetAWSParameter(name string, encrypted bool) (string, error) {
	cfg, err := LoadAWSConfig()
	if err != nil {
		return "", err
	}

	client := ssm.NewFromConfig(*cfg)

	output, err := client.GetParameter(context.TODO(), &ssm.GetParameterInput{
		Name:           &name,
		WithDecryption: encrypted})

	if err != nil {
		return "", err
	}

	return *output.Parameter.Value, nil
}

// ObjectStore is the durable store the collector writes per-county documents
// to and the reducer reads them back from.
type ObjectStore interface {
	Put(key string, body []byte, contentType string, cacheControl string) error
	Get(key string) ([]byte, error)
	List(prefix string) ([]string, error)
}

var s3mutex *sync.Mutex = &sync.Mutex{}
var s3client *s3.Client //singleton

func getS3Client() (*s3.Client, error) {
	s3mutex.Lock()
	defer s3mutex.Unlock()

	if s3client == nil {
		cfg, err := LoadAWSConfig()
		if err != nil {
			return nil, err
		}

		s3client = s3.NewFromConfig(*cfg)
	}

	return s3client, nil
}

type S3ObjectStore struct {
	Bucket   string
	Compress bool
	PageSize int
}

func NewS3ObjectStore(bucket string, compress bool, pageSize int) *S3ObjectStore {
	store := new(S3ObjectStore)
	store.Bucket = bucket
	store.Compress = compress
	store.PageSize = pageSize

	return store
}

func (store *S3ObjectStore) Put(key string, body []byte, contentType string, cacheControl string) error {
	client, err := getS3Client()
	if err != nil {
		return err
	}

	input := &s3.PutObjectInput{
		Bucket: &store.Bucket,
		Key:    &key,
	}

	if len(contentType) > 0 {
		input.ContentType = &contentType
	}

	if len(cacheControl) > 0 {
		input.CacheControl = &cacheControl
	}

	if store.Compress {
		buf := new(bytes.Buffer)
		gzWriter := gzip.NewWriter(buf)
		if _, err := gzWriter.Write(body); err != nil {
			return err
		}
		if err := gzWriter.Close(); err != nil {
			return err
		}

		body = buf.Bytes()
		contentEncoding := "gzip"
		input.ContentEncoding = &contentEncoding
	}

	input.Body = bytes.NewReader(body)

	_, err = client.PutObject(context.TODO(), input)
	if err != nil {
		return err
	}

	Log.Debugf("Put %d bytes to s3://%s/%s", len(body), store.Bucket, key)

	return nil
}

func (store *S3ObjectStore) Get(key string) ([]byte, error) {
	client, err := getS3Client()
	if err != nil {
		return nil, err
	}

	output, err := client.GetObject(context.TODO(), &s3.GetObjectInput{
		Bucket: &store.Bucket,
		Key:    &key})

	if err != nil {
		return nil, err
	}

	defer output.Body.Close()

	body, err := ioutil.ReadAll(output.Body)
	if err != nil {
		return nil, err
	}

	//stored objects may be gzipped (see Put)
	if len(body) > 2 && body[0] == 0x1f && body[1] == 0x8b {
		gzReader, err := gzip.NewReader(bytes.NewReader(body))
		if err != nil {
			return nil, err
		}

		body, err = ioutil.ReadAll(gzReader)
		if err != nil {
			return nil, err
		}
	}

	return body, nil
}

func (store *S3ObjectStore) List(prefix string) ([]string, error) {
	client, err := getS3Client()
	if err != nil {
		return nil, err
	}

	pageSize := int32(store.PageSize)
	if pageSize <= 0 {
		pageSize = DefaultReducerPageSize
	}

	keys := make([]string, 0)
	var continuationToken *string

	for {
		output, err := client.ListObjectsV2(context.TODO(), &s3.ListObjectsV2Input{
			Bucket:            &store.Bucket,
			Prefix:            &prefix,
			MaxKeys:           pageSize,
			ContinuationToken: continuationToken})

		if err != nil {
			return nil, err
		}

		for _, obj := range output.Contents {
			//the prefix itself shows up as an empty directory marker
			if obj.Key != nil && *obj.Key != prefix {
				keys = append(keys, *obj.Key)
			}
		}

		if !output.IsTruncated || output.NextContinuationToken == nil {
			break
		}
		continuationToken = output.NextContinuationToken
	}

	return keys, nil
}
